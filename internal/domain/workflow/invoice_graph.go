package workflow

import (
	"fmt"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

// preDecisionStates can all be paused for more information. A second request while
// paused replaces the first.
var preDecisionStates = []State{
	StateReceived,
	StatePending,
	StateDigitizing,
	StateVerified,
	StateValidationRequired,
	StateMatchDiscrepancy,
	StatePendingApproval,
	StatePMApproved,
	StateInfoRequested,
}

// RequirePMApproval guards the final stage
func RequirePMApproval(inv *entity.Invoice) error {
	if FinalStageGuard(inv) {
		return nil
	}
	return fmt.Errorf("PM approval is %s", inv.PMApproval.Status)
}

// InvoiceGraph is the invoice lifecycle. Rejected and PAID have no outgoing edges.
var InvoiceGraph = NewGraph().
	From(preDecisionStates, TriggerRequestInfo, StateInfoRequested).

	// Intake pipeline (auto path)
	Edge(StateReceived, TriggerStartDigitizing, StateDigitizing).
	Edge(StateDigitizing, TriggerVerify, StateVerified).
	Edge(StateDigitizing, TriggerRequireValidation, StateValidationRequired).
	Edge(StateDigitizing, TriggerFlagDiscrepancy, StateMatchDiscrepancy).
	Edge(StateValidationRequired, TriggerVerify, StateVerified).
	Edge(StateValidationRequired, TriggerFlagDiscrepancy, StateMatchDiscrepancy).
	Edge(StateMatchDiscrepancy, TriggerVerify, StateVerified).
	Edge(StateVerified, TriggerSubmitForApproval, StatePendingApproval).

	// PM stage; the manual path enters here directly from Pending
	Edge(StatePending, TriggerApprove, StatePMApproved).
	Edge(StatePending, TriggerReject, StateRejected).
	Edge(StatePendingApproval, TriggerApprove, StatePMApproved).
	Edge(StatePendingApproval, TriggerReject, StateRejected).
	Edge(StateInfoRequested, TriggerResolveInfo, StatePendingApproval).

	// Final stage
	GuardedEdge(StatePMApproved, TriggerAdminApprove, StateApproved, RequirePMApproval).
	GuardedEdge(StatePMApproved, TriggerAdminReject, StateRejected, RequirePMApproval).
	Edge(StatePMApproved, TriggerReject, StateRejected).

	// Settlement
	Edge(StateApproved, TriggerMarkPaid, StatePaid).
	MustBuild()
