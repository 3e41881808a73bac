package workflow

import (
	"fmt"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

// CheckConsistency verifies that inv.Status agrees with its approval sub-records
func CheckConsistency(inv *entity.Invoice) error {
	if inv == nil {
		return fmt.Errorf("%w: nil invoice", ErrInconsistent)
	}

	s := State(inv.Status)
	if !s.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, inv.Status)
	}

	pm := inv.PMApproval.Status
	admin := inv.AdminApproval.Status

	var ok bool
	switch s {
	case StatePMApproved:
		ok = pm == entity.ApprovalApproved && admin == entity.ApprovalPending
	case StateApproved, StatePaid:
		ok = pm == entity.ApprovalApproved && admin == entity.ApprovalApproved
	case StateRejected:
		ok = pm == entity.ApprovalRejected || admin == entity.ApprovalRejected
	case StateInfoRequested:
		ok = pm == entity.ApprovalInfoRequested && admin == entity.ApprovalPending
	case StateReceived, StatePending, StateDigitizing, StateVerified,
		StateValidationRequired, StateMatchDiscrepancy, StatePendingApproval:
		ok = pm == entity.ApprovalPending && admin == entity.ApprovalPending
	}

	if !ok {
		return fmt.Errorf("%w: status %q with pmApproval %q and adminApproval %q",
			ErrInconsistent, inv.Status, pm, admin)
	}
	return nil
}
