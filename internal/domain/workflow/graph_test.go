package workflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

func invoiceAt(s State, pm entity.ApprovalStatus) *entity.Invoice {
	return &entity.Invoice{Status: s.String(), PMApproval: entity.ApprovalRecord{Status: pm}}
}

func TestGraphBuilder_RejectsBadEdges(t *testing.T) {
	tests := []struct {
		name  string
		build func(*GraphBuilder)
		want  error
	}{
		{"bad source", func(b *GraphBuilder) { b.Edge("Draft", TriggerApprove, StatePMApproved) }, ErrInvalidState},
		{"bad target", func(b *GraphBuilder) { b.Edge(StatePending, TriggerApprove, "Done") }, ErrInvalidState},
		{"bad trigger", func(b *GraphBuilder) { b.Edge(StatePending, "ESCALATE", StateApproved) }, ErrUnknownTrigger},
		{"duplicate", func(b *GraphBuilder) {
			b.Edge(StatePending, TriggerApprove, StatePMApproved).Edge(StatePending, TriggerApprove, StateApproved)
		}, ErrDuplicateEdge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewGraph()
			tt.build(b)
			if _, err := b.Build(); !errors.Is(err, tt.want) {
				t.Fatalf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGraphBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustBuild() did not panic")
		}
	}()
	NewGraph().Edge("nope", TriggerApprove, StateApproved).MustBuild()
}

func TestGraph_BuildIsFrozen(t *testing.T) {
	b := NewGraph().Edge(StatePending, TriggerApprove, StatePMApproved)
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	b.Edge(StatePending, TriggerReject, StateRejected)

	if g.Allows(StatePending, TriggerReject) {
		t.Error("edge added after Build leaked into the graph")
	}
}

func TestGraph_GuardErrorIsReported(t *testing.T) {
	g := NewGraph().
		GuardedEdge(StatePMApproved, TriggerAdminApprove, StateApproved, func(*entity.Invoice) error {
			return errors.New("missing sign-off")
		}).
		MustBuild()

	_, err := g.Next(invoiceAt(StatePMApproved, entity.ApprovalApproved), TriggerAdminApprove)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Next() error = %v, want ErrGuardFailed", err)
	}
	if got := err.Error(); !strings.Contains(got, "missing sign-off") {
		t.Errorf("error %q does not name the guard failure", got)
	}
}

func TestInvoiceGraph_Next(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		pm      entity.ApprovalStatus
		trigger Trigger
		want    State
		wantErr error
	}{
		{"manual approve", StatePending, entity.ApprovalPending, TriggerApprove, StatePMApproved, nil},
		{"pipeline start", StateReceived, entity.ApprovalPending, TriggerStartDigitizing, StateDigitizing, nil},
		{"digitizing verify", StateDigitizing, entity.ApprovalPending, TriggerVerify, StateVerified, nil},
		{"discrepancy", StateDigitizing, entity.ApprovalPending, TriggerFlagDiscrepancy, StateMatchDiscrepancy, nil},
		{"submit for approval", StateVerified, entity.ApprovalPending, TriggerSubmitForApproval, StatePendingApproval, nil},
		{"info from pipeline", StateValidationRequired, entity.ApprovalPending, TriggerRequestInfo, StateInfoRequested, nil},
		{"second info request", StateInfoRequested, entity.ApprovalInfoRequested, TriggerRequestInfo, StateInfoRequested, nil},
		{"resolve info", StateInfoRequested, entity.ApprovalInfoRequested, TriggerResolveInfo, StatePendingApproval, nil},
		{"final approve", StatePMApproved, entity.ApprovalApproved, TriggerAdminApprove, StateApproved, nil},
		{"final reject", StatePMApproved, entity.ApprovalApproved, TriggerAdminReject, StateRejected, nil},
		{"final approve guard", StatePMApproved, entity.ApprovalPending, TriggerAdminApprove, "", ErrGuardFailed},
		{"mark paid", StateApproved, entity.ApprovalApproved, TriggerMarkPaid, StatePaid, nil},
		{"skip pm stage", StatePending, entity.ApprovalPending, TriggerAdminApprove, "", ErrInvalidTransition},
		{"rejected is final", StateRejected, entity.ApprovalRejected, TriggerApprove, "", ErrInvalidTransition},
		{"paid is final", StatePaid, entity.ApprovalApproved, TriggerRequestInfo, "", ErrInvalidTransition},
		{"approve before digitizing", StateReceived, entity.ApprovalPending, TriggerApprove, "", ErrInvalidTransition},
		{"unknown status", State("Draft"), entity.ApprovalPending, TriggerApprove, "", ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := invoiceAt(tt.from, tt.pm)
			got, err := InvoiceGraph.Next(inv, tt.trigger)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Next() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Next() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
			if inv.Status != tt.from.String() {
				t.Errorf("Next() modified the invoice status to %q", inv.Status)
			}
		})
	}
}

func TestInvoiceGraph_RequestInfoFromEveryPreDecisionState(t *testing.T) {
	for _, s := range AllStates {
		got := InvoiceGraph.Allows(s, TriggerRequestInfo)
		want := !s.IsTerminal()
		if got != want {
			t.Errorf("Allows(%s, REQUEST_INFO) = %v, want %v", s, got, want)
		}
	}
}

func TestInvoiceGraph_Permitted(t *testing.T) {
	got := InvoiceGraph.Permitted(StatePending)
	want := []Trigger{TriggerApprove, TriggerReject, TriggerRequestInfo}
	if len(got) != len(want) {
		t.Fatalf("Permitted(Pending) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Permitted(Pending)[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	for _, s := range []State{StateRejected, StatePaid, State("Draft")} {
		if p := InvoiceGraph.Permitted(s); len(p) != 0 {
			t.Errorf("Permitted(%s) = %v, want none", s, p)
		}
	}
}

func TestInvoiceGraph_EveryTriggerHasAnEdge(t *testing.T) {
	used := map[Trigger]bool{}
	for _, s := range AllStates {
		for _, tr := range InvoiceGraph.Permitted(s) {
			used[tr] = true
		}
	}
	for tr := range triggerStages {
		if !used[tr] {
			t.Errorf("trigger %s has no edge", tr)
		}
	}
}
