package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-approval/internal/application/port"
)

// Named pairs a notifier with the driver name used in errors
type Named struct {
	Name     string
	Notifier port.Notifier
}

// Fanout delivers every notification through all configured notifiers.
// One failing channel does not stop the others; the combined status is
// FAILED if any channel failed.
type Fanout struct {
	targets []Named
}

// NewFanout creates a fan-out over targets, in order
func NewFanout(targets ...Named) *Fanout {
	return &Fanout{targets: targets}
}

// Len returns the number of channels
func (f *Fanout) Len() int {
	return len(f.targets)
}

// Notify implements port.Notifier
func (f *Fanout) Notify(ctx context.Context, n *port.Notification) (port.DeliveryStatus, error) {
	var errs []error
	status := port.DeliverySent
	for _, t := range f.targets {
		st, err := t.Notifier.Notify(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
		if st != port.DeliverySent {
			status = port.DeliveryFailed
			if err == nil {
				errs = append(errs, fmt.Errorf("%s: delivery status %s", t.Name, st))
			}
		}
	}
	if len(errs) > 0 {
		status = port.DeliveryFailed
	}
	return status, errors.Join(errs...)
}

var _ port.Notifier = (*Fanout)(nil)
