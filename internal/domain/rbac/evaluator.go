package rbac

import "github.com/garyjia/invoice-approval/internal/domain/entity"

// Evaluator answers permission questions against an injected Policy.
// It is side-effect free and never consults delegation; callers that honor
// delegation build an effective Subject first.
type Evaluator struct {
	policy *Policy
}

// NewEvaluator creates an evaluator over policy, falling back to DefaultPolicy when nil
func NewEvaluator(policy *Policy) *Evaluator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Evaluator{policy: policy}
}

// Allowed reports whether subject may perform perm, optionally against inv.
// ADMIN is always allowed. For project-scoped grants, a nil inv is a capability
// probe and is allowed; a non-nil inv requires its project among subject.Projects.
func (e *Evaluator) Allowed(subject Subject, perm Permission, inv *entity.Invoice) bool {
	role := Normalize(string(subject.Role))
	if role == RoleAdmin {
		return true
	}

	granted, scoped := e.policy.lookup(role, perm)
	if !granted {
		return false
	}
	if !scoped || inv == nil {
		return true
	}
	return subject.hasProject(inv.ProjectKey())
}

// CanPotentiallyApprove is the capability probe for PM-stage approval.
// It answers whether an approve affordance should be shown, never whether a mutation is authorized.
func (e *Evaluator) CanPotentiallyApprove(subject Subject) bool {
	return e.Allowed(subject, PermApproveInvoice, nil)
}

// AuthorizeApproval decides whether subject may take a PM-stage action on inv.
// Without an invoice there is nothing to authorize against, so the answer is no.
func (e *Evaluator) AuthorizeApproval(subject Subject, inv *entity.Invoice) bool {
	if inv == nil {
		return false
	}
	return e.Allowed(subject, PermApproveInvoice, inv)
}

// Authorize decides whether subject may exercise perm on inv. Project-scoped
// permissions are evaluated against inv and never as a probe.
func (e *Evaluator) Authorize(subject Subject, perm Permission, inv *entity.Invoice) bool {
	if perm == PermApproveInvoice {
		return e.AuthorizeApproval(subject, inv)
	}
	return e.Allowed(subject, perm, inv)
}

// SubjectFor builds the evaluator view of a stored user
func SubjectFor(u *entity.User) Subject {
	if u == nil {
		return Subject{}
	}
	projects := make([]string, len(u.AssignedProjects))
	copy(projects, u.AssignedProjects)
	return Subject{
		UserID:   u.ID,
		Role:     Normalize(u.Role),
		Projects: projects,
	}
}
