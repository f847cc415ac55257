package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/events"
)

// NotificationService turns engine events into partner and manager
// notifications. Delivery is a logged stub.
type NotificationService struct {
	dispatcher events.Dispatcher
	dir        *directory.Directory
	logger     *zap.Logger
	cfg        config.NotificationConfig

	mu      sync.Mutex
	pending sync.WaitGroup
	timers  []*time.Timer
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, dir *directory.Directory, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		dir:        dir,
		logger:     loggerOrNop(logger),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRoundOpened, n.handleRoundOpened)
	n.dispatcher.Subscribe(events.EventAppointmentClaimed, n.handleAppointmentClaimed)
	n.dispatcher.Subscribe(events.EventAppointmentStalled, n.handleAppointmentStalled)
}

// Stop cancels pending delayed sends and waits for running ones.
func (n *NotificationService) Stop() {
	n.mu.Lock()
	for _, t := range n.timers {
		if t.Stop() {
			n.pending.Done()
		}
	}
	n.timers = nil
	n.mu.Unlock()
	n.pending.Wait()
}

func (n *NotificationService) handleRoundOpened(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RoundOpenedPayload)
	if !ok {
		return nil
	}
	for _, name := range payload.Partners {
		n.notifyPartner(event, name, "new appointment available to claim")
	}
	return nil
}

func (n *NotificationService) handleAppointmentClaimed(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppointmentClaimedPayload)
	if !ok {
		return nil
	}
	n.notifyPartner(event, payload.Partner, "appointment claim approved")
	return nil
}

func (n *NotificationService) handleAppointmentStalled(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppointmentStalledPayload)
	if !ok {
		return nil
	}
	hub, found := n.dir.Hub(payload.Hub)
	if !found || strings.TrimSpace(hub.ManagerEmail) == "" {
		n.logger.Warn("stalled appointment has no manager to notify",
			zap.String("appointment_id", event.AppointmentID),
			zap.String("hub", payload.Hub))
		return nil
	}
	n.schedule(func() {
		n.sendEmailNotificationStub(hub.ManagerEmail, event, "appointment stalled: "+string(payload.Reason))
	})
	return nil
}

func (n *NotificationService) notifyPartner(event events.Event, name, message string) {
	phone, email := n.contact(name)
	if n.cfg.SendSMS && phone != "" {
		n.schedule(func() { n.sendSMSNotificationStub(phone, event, message) })
	}
	if n.cfg.SendEmail && email != "" {
		n.schedule(func() { n.sendEmailNotificationStub(email, event, message) })
	}
}

func (n *NotificationService) contact(name string) (string, string) {
	if n.dir == nil {
		return "", ""
	}
	partners, _ := n.dir.Snapshot()
	for _, p := range partners {
		if p.Name == name {
			return p.Phone, p.Email
		}
	}
	return "", ""
}

func (n *NotificationService) schedule(send func()) {
	n.pending.Add(1)
	if n.cfg.Delay <= 0 {
		defer n.pending.Done()
		send()
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timers = append(n.timers, time.AfterFunc(n.cfg.Delay, func() {
		defer n.pending.Done()
		send()
	}))
}

func (n *NotificationService) sendSMSNotificationStub(to string, event events.Event, message string) {
	n.logger.Info("sendSMSNotificationStub",
		zap.String("to", to),
		zap.String("appointment_id", event.AppointmentID),
		zap.String("event_type", string(event.Type)),
		zap.String("message", message))
}

func (n *NotificationService) sendEmailNotificationStub(to string, event events.Event, message string) {
	from := n.cfg.EmailFrom
	if strings.TrimSpace(from) == "" {
		from = "dispatch@localhost"
	}
	n.logger.Info("sendEmailNotificationStub",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("appointment_id", event.AppointmentID),
		zap.String("event_type", string(event.Type)),
		zap.String("message", message))
	if url := strings.TrimSpace(n.cfg.WebhookURL); url != "" {
		n.logger.Debug("sendWebhookNotificationStub",
			zap.String("url", url),
			zap.String("appointment_id", event.AppointmentID),
			zap.String("event_type", string(event.Type)))
	}
}
