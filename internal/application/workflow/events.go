package workflow

import (
	"github.com/garyjia/invoice-approval/internal/domain/event"
	domainwf "github.com/garyjia/invoice-approval/internal/domain/workflow"
)

// eventTypeFor maps an applied trigger to the event published after commit
func eventTypeFor(t domainwf.Trigger) event.Type {
	switch t {
	case domainwf.TriggerApprove:
		return event.TypePendingApproval
	case domainwf.TriggerAdminApprove:
		return event.TypePaid
	case domainwf.TriggerReject, domainwf.TriggerAdminReject:
		return event.TypeRejected
	case domainwf.TriggerRequestInfo:
		return event.TypeAwaitingInfo
	case domainwf.TriggerMarkPaid:
		return event.TypeSettled
	default:
		return event.TypeStatusChanged
	}
}
