package entity

// Approval sub-record status constants
const (
	ApprovalPending       ApprovalStatus = "PENDING"
	ApprovalApproved      ApprovalStatus = "APPROVED"
	ApprovalRejected      ApprovalStatus = "REJECTED"
	ApprovalInfoRequested ApprovalStatus = "INFO_REQUESTED"
)

// DefaultCurrency is the only currency invoices are recorded in
const DefaultCurrency = "USD"

// Message type constants
const (
	MessageTypeInfoRequest = "INFO_REQUEST"
)

// Audit action names that are not workflow transitions
const (
	AuditActionSubmit = "SUBMIT"
)

// Submission paths
const (
	SubmissionManual = "manual"
	SubmissionAuto   = "auto"
)
