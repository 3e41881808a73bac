package rbac

// Policy is an immutable role to permission table. Build one with DefaultPolicy or NewPolicy
// and inject it into an Evaluator.
type Policy struct {
	grants map[Role]map[Permission]bool
	// scoped lists, per role, permissions that additionally require project membership
	scoped map[Role]map[Permission]bool
}

// Grant describes one role's entry in a policy table
type Grant struct {
	Permissions []Permission
	// ProjectScoped is the subset of Permissions that require the resource's project
	// to be among the subject's projects.
	ProjectScoped []Permission
}

// NewPolicy copies table into a new Policy
func NewPolicy(table map[Role]Grant) *Policy {
	p := &Policy{
		grants: make(map[Role]map[Permission]bool, len(table)),
		scoped: make(map[Role]map[Permission]bool, len(table)),
	}
	for role, g := range table {
		perms := make(map[Permission]bool, len(g.Permissions))
		for _, perm := range g.Permissions {
			perms[perm] = true
		}
		p.grants[role] = perms

		scoped := make(map[Permission]bool, len(g.ProjectScoped))
		for _, perm := range g.ProjectScoped {
			scoped[perm] = true
		}
		p.scoped[role] = scoped
	}
	return p
}

// DefaultPolicy returns the standard approval policy
func DefaultPolicy() *Policy {
	return NewPolicy(map[Role]Grant{
		RoleProjectManager: {
			Permissions:   []Permission{PermApproveInvoice},
			ProjectScoped: []Permission{PermApproveInvoice},
		},
		RoleFinanceUser: {
			Permissions: []Permission{
				PermApproveInvoice,
				PermFinalizePayment,
				PermSubmitInvoice,
				PermViewAuditLogs,
				PermProcessInvoice,
			},
		},
		RoleVendor: {
			Permissions: []Permission{PermSubmitInvoice},
		},
	})
}

func (p *Policy) lookup(role Role, perm Permission) (granted, scoped bool) {
	if p == nil {
		return false, false
	}
	return p.grants[role][perm], p.scoped[role][perm]
}

// Permissions lists the permissions granted to role, excluding the ADMIN backstop
func (p *Policy) Permissions(role Role) []Permission {
	if p == nil {
		return nil
	}
	out := make([]Permission, 0, len(p.grants[role]))
	for perm := range p.grants[role] {
		out = append(out, perm)
	}
	return out
}
