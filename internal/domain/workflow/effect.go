package workflow

import (
	"time"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

// Effect describes what a trigger does to the approval sub-records
type Effect struct {
	// PM, Admin and HIL are the new sub-record statuses; nil leaves the record untouched
	PM    *entity.ApprovalStatus
	Admin *entity.ApprovalStatus
	HIL   *entity.ApprovalStatus
	// ResetPM clears the PM record back to PENDING without an approver stamp
	ResetPM bool
	// AuditAction is the action name written to the audit log
	AuditAction string
}

func status(s entity.ApprovalStatus) *entity.ApprovalStatus {
	return &s
}

var effects = map[Trigger]Effect{
	TriggerApprove:           {PM: status(entity.ApprovalApproved), AuditAction: "PM_APPROVE"},
	TriggerReject:            {PM: status(entity.ApprovalRejected), AuditAction: "PM_REJECT"},
	TriggerRequestInfo:       {PM: status(entity.ApprovalInfoRequested), AuditAction: "PM_REQUEST_INFO"},
	TriggerAdminApprove:      {Admin: status(entity.ApprovalApproved), AuditAction: "ADMIN_APPROVE"},
	TriggerAdminReject:       {Admin: status(entity.ApprovalRejected), AuditAction: "ADMIN_REJECT"},
	TriggerStartDigitizing:   {AuditAction: "START_DIGITIZING"},
	TriggerVerify:            {HIL: status(entity.ApprovalApproved), AuditAction: "VERIFY"},
	TriggerRequireValidation: {AuditAction: "REQUIRE_VALIDATION"},
	TriggerFlagDiscrepancy:   {AuditAction: "FLAG_DISCREPANCY"},
	TriggerSubmitForApproval: {AuditAction: "SUBMIT_FOR_APPROVAL"},
	TriggerResolveInfo:       {ResetPM: true, AuditAction: "RESOLVE_INFO"},
	TriggerMarkPaid:          {AuditAction: "MARK_PAID"},
}

// EffectOf returns the effect table entry for t
func EffectOf(t Trigger) (Effect, bool) {
	e, ok := effects[t]
	return e, ok
}

// Stamp identifies who took an action and when
type Stamp struct {
	UserID string
	Role   string
	Notes  string
	At     time.Time
}

// Patch builds the partial invoice update for a transition that landed in to
func (e Effect) Patch(to State, stamp Stamp) entity.InvoicePatch {
	newStatus := to.String()
	patch := entity.InvoicePatch{Status: &newStatus}

	record := func(s entity.ApprovalStatus) *entity.ApprovalRecord {
		at := stamp.At
		return &entity.ApprovalRecord{
			Status:         s,
			ApprovedBy:     stamp.UserID,
			ApprovedByRole: stamp.Role,
			ApprovedAt:     &at,
			Notes:          stamp.Notes,
		}
	}

	if e.PM != nil {
		patch.PMApproval = record(*e.PM)
	}
	if e.ResetPM {
		reset := entity.PendingRecord()
		patch.PMApproval = &reset
	}
	if e.Admin != nil {
		patch.AdminApproval = record(*e.Admin)
	}
	if e.HIL != nil {
		patch.HILReview = record(*e.HIL)
	}

	return patch
}

// FinalStageGuard holds when the PM gate has been passed
func FinalStageGuard(inv *entity.Invoice) bool {
	return inv != nil && inv.PMApproval.Status == entity.ApprovalApproved
}

// AlreadyApplied reports whether inv already reflects a decision trigger, so a repeat
// is a no-op. Intake pipeline triggers are never treated as repeats. An info request
// only repeats when the same actor asks again; anyone else opens a new request.
func AlreadyApplied(inv *entity.Invoice, t Trigger, actorID string) bool {
	if inv == nil {
		return false
	}
	s := State(inv.Status)
	switch t {
	case TriggerApprove:
		return s == StatePMApproved && inv.PMApproval.Status == entity.ApprovalApproved
	case TriggerReject:
		return s == StateRejected && inv.PMApproval.Status == entity.ApprovalRejected
	case TriggerRequestInfo:
		return s == StateInfoRequested && inv.PMApproval.Status == entity.ApprovalInfoRequested &&
			inv.PMApproval.ApprovedBy == actorID
	case TriggerAdminApprove:
		return (s == StateApproved || s == StatePaid) && inv.AdminApproval.Status == entity.ApprovalApproved
	case TriggerAdminReject:
		return s == StateRejected && inv.AdminApproval.Status == entity.ApprovalRejected
	case TriggerMarkPaid:
		return s == StatePaid
	default:
		return false
	}
}
