package workflow

import (
	"fmt"
	"strings"
)

// Trigger is a requested workflow action
type Trigger string

const (
	// PM stage
	TriggerApprove     Trigger = "APPROVE"
	TriggerReject      Trigger = "REJECT"
	TriggerRequestInfo Trigger = "REQUEST_INFO"

	// Final stage
	TriggerAdminApprove Trigger = "ADMIN_APPROVE"
	TriggerAdminReject  Trigger = "ADMIN_REJECT"

	// Intake pipeline and settlement
	TriggerStartDigitizing   Trigger = "START_DIGITIZING"
	TriggerVerify            Trigger = "VERIFY"
	TriggerRequireValidation Trigger = "REQUIRE_VALIDATION"
	TriggerFlagDiscrepancy   Trigger = "FLAG_DISCREPANCY"
	TriggerSubmitForApproval Trigger = "SUBMIT_FOR_APPROVAL"
	TriggerResolveInfo       Trigger = "RESOLVE_INFO"
	TriggerMarkPaid          Trigger = "MARK_PAID"
)

// Stage groups triggers by the approval gate they belong to
type Stage int

const (
	StagePipeline Stage = iota
	StagePM
	StageFinal
	StageSettlement
)

var triggerStages = map[Trigger]Stage{
	TriggerApprove:           StagePM,
	TriggerReject:            StagePM,
	TriggerRequestInfo:       StagePM,
	TriggerAdminApprove:      StageFinal,
	TriggerAdminReject:       StageFinal,
	TriggerStartDigitizing:   StagePipeline,
	TriggerVerify:            StagePipeline,
	TriggerRequireValidation: StagePipeline,
	TriggerFlagDiscrepancy:   StagePipeline,
	TriggerSubmitForApproval: StagePipeline,
	TriggerResolveInfo:       StagePipeline,
	TriggerMarkPaid:          StageSettlement,
}

// finalAliases accepts the spelling used by some clients for final-stage actions
var finalAliases = map[string]Trigger{
	"FINANCE_APPROVE": TriggerAdminApprove,
	"FINANCE_REJECT":  TriggerAdminReject,
}

// ParseTrigger validates raw against the closed action set.
// Anything outside it yields ErrUnknownTrigger.
func ParseTrigger(raw string) (Trigger, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if t, ok := finalAliases[key]; ok {
		return t, nil
	}
	t := Trigger(key)
	if _, ok := triggerStages[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTrigger, raw)
	}
	return t, nil
}

// Stage returns the approval gate the trigger belongs to
func (t Trigger) Stage() Stage {
	return triggerStages[t]
}

// IsFinalDecision reports whether t is gated on a completed PM approval
func (t Trigger) IsFinalDecision() bool {
	return t == TriggerAdminApprove || t == TriggerAdminReject
}

// IsValid reports whether t is in the closed action set
func (t Trigger) IsValid() bool {
	_, ok := triggerStages[t]
	return ok
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
