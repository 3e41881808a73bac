package workflow

// State is a canonical invoice status
type State string

const (
	StateReceived           State = "RECEIVED"
	StatePending            State = "Pending"
	StateDigitizing         State = "DIGITIZING"
	StateVerified           State = "VERIFIED"
	StateValidationRequired State = "VALIDATION_REQUIRED"
	StateMatchDiscrepancy   State = "MATCH_DISCREPANCY"
	StatePendingApproval    State = "PENDING_APPROVAL"
	StatePMApproved         State = "PM Approved"
	StateApproved           State = "Approved"
	StateRejected           State = "Rejected"
	StateInfoRequested      State = "Info Requested"
	StatePaid               State = "PAID"
)

// AllStates lists every canonical status in pipeline order
var AllStates = []State{
	StateReceived,
	StatePending,
	StateDigitizing,
	StateVerified,
	StateValidationRequired,
	StateMatchDiscrepancy,
	StatePendingApproval,
	StatePMApproved,
	StateInfoRequested,
	StateApproved,
	StateRejected,
	StatePaid,
}

var validStates = map[State]bool{
	StateReceived:           true,
	StatePending:            true,
	StateDigitizing:         true,
	StateVerified:           true,
	StateValidationRequired: true,
	StateMatchDiscrepancy:   true,
	StatePendingApproval:    true,
	StatePMApproved:         true,
	StateApproved:           true,
	StateRejected:           true,
	StateInfoRequested:      true,
	StatePaid:               true,
}

// terminalStates end the approval decision process. Approved still admits settlement (MARK_PAID).
var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
	StatePaid:     true,
}

var initialStates = map[State]bool{
	StateReceived: true,
	StatePending:  true,
}

// IsTerminal returns true if no further approval decision can be made in this state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsInitial returns true for the two entry states (auto and manual intake)
func (s State) IsInitial() bool {
	return initialStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a canonical invoice status
func (s State) IsValid() bool {
	return validStates[s]
}
