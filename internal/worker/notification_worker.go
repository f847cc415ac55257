package worker

import (
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/service"
)

// StartNotificationWorker registers notification handlers and, when NATS is
// configured, the forwarder that republishes every event.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher events.Dispatcher, forwarder *events.NATSForwarder) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if forwarder != nil && dispatcher != nil {
		forwarder.Register(dispatcher)
	}
}
