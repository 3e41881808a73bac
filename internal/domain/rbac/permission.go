package rbac

// Permission is an action kind checked by the evaluator
type Permission string

const (
	PermApproveInvoice  Permission = "APPROVE_INVOICE"
	PermFinalizePayment Permission = "FINALIZE_PAYMENT"
	PermSubmitInvoice   Permission = "SUBMIT_INVOICE"
	PermViewAuditLogs   Permission = "VIEW_AUDIT_LOGS"
	PermConfigureSystem Permission = "CONFIGURE_SYSTEM"
	PermManageUsers     Permission = "MANAGE_USERS"
	PermProcessInvoice  Permission = "PROCESS_INVOICE"
)

// String returns the string representation of the permission
func (p Permission) String() string {
	return string(p)
}

// Subject is the actor as seen by the evaluator. It may be an effective actor
// standing in for a delegator.
type Subject struct {
	UserID   string
	Role     Role
	Projects []string
}

func (s Subject) hasProject(project string) bool {
	if project == "" {
		return false
	}
	for _, p := range s.Projects {
		if p == project {
			return true
		}
	}
	return false
}
