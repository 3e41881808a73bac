package dispatcher

import (
	"context"

	"github.com/garyjia/invoice-approval/internal/domain/event"
)

// Handler reacts to one invoice event. Async errors are logged, not retried.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription. ListHandlers leaves Handler nil.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
