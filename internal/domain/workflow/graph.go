package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

// Guard checks an invoice before an edge is taken. A non-nil error names the unmet condition.
type Guard func(inv *entity.Invoice) error

type edge struct {
	to    State
	guard Guard
}

// Graph is an immutable transition table with at most one edge per (state, trigger).
// One Graph is safe to share between goroutines.
type Graph struct {
	edges map[State]map[Trigger]edge
}

// GraphBuilder collects edges; the first bad edge is reported by Build
type GraphBuilder struct {
	edges map[State]map[Trigger]edge
	errs  []error
}

// NewGraph starts an empty graph
func NewGraph() *GraphBuilder {
	return &GraphBuilder{edges: make(map[State]map[Trigger]edge)}
}

// Edge adds an unguarded transition
func (b *GraphBuilder) Edge(from State, t Trigger, to State) *GraphBuilder {
	return b.GuardedEdge(from, t, to, nil)
}

// GuardedEdge adds a transition taken only when guard passes
func (b *GraphBuilder) GuardedEdge(from State, t Trigger, to State, guard Guard) *GraphBuilder {
	switch {
	case !from.IsValid():
		b.errs = append(b.errs, fmt.Errorf("%w: source %q", ErrInvalidState, from))
		return b
	case !to.IsValid():
		b.errs = append(b.errs, fmt.Errorf("%w: target %q", ErrInvalidState, to))
		return b
	case !t.IsValid():
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrUnknownTrigger, t))
		return b
	}

	out, ok := b.edges[from]
	if !ok {
		out = make(map[Trigger]edge)
		b.edges[from] = out
	}
	if prev, dup := out[t]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: %s on %s already leads to %s", ErrDuplicateEdge, from, t, prev.to))
		return b
	}
	out[t] = edge{to: to, guard: guard}
	return b
}

// From adds the same edge from every listed state
func (b *GraphBuilder) From(states []State, t Trigger, to State) *GraphBuilder {
	for _, s := range states {
		b.Edge(s, t, to)
	}
	return b
}

// Build freezes the graph
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	edges := make(map[State]map[Trigger]edge, len(b.edges))
	for s, out := range b.edges {
		cp := make(map[Trigger]edge, len(out))
		for t, e := range out {
			cp[t] = e
		}
		edges[s] = cp
	}
	return &Graph{edges: edges}, nil
}

// MustBuild is Build for package-level graphs
func (b *GraphBuilder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// Next resolves where t takes inv. inv is not modified.
func (g *Graph) Next(inv *entity.Invoice, t Trigger) (State, error) {
	if inv == nil {
		return "", fmt.Errorf("%w: nil invoice", ErrInvalidState)
	}
	from := State(inv.Status)
	if !from.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, inv.Status)
	}

	e, ok := g.edges[from][t]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, from)
	}
	if e.guard != nil {
		if err := e.guard(inv); err != nil {
			return "", fmt.Errorf("%w: %s from %s: %v", ErrGuardFailed, t, from, err)
		}
	}
	return e.to, nil
}

// Allows reports whether s has an edge for t. Guards are not evaluated.
func (g *Graph) Allows(s State, t Trigger) bool {
	_, ok := g.edges[s][t]
	return ok
}

// Permitted returns the triggers with an edge out of s, sorted
func (g *Graph) Permitted(s State) []Trigger {
	out := g.edges[s]
	triggers := make([]Trigger, 0, len(out))
	for t := range out {
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
