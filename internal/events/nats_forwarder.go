package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSForwarder republishes dispatcher events on NATS subjects of the form
// <prefix>.<event type>.
type NATSForwarder struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSForwarder builds a forwarder.
func NewNATSForwarder(conn *nats.Conn, prefix string) *NATSForwarder {
	if prefix == "" {
		prefix = "dispatch.events"
	}
	return &NATSForwarder{conn: conn, prefix: prefix}
}

// Register subscribes the forwarder to every event.
func (f *NATSForwarder) Register(d Dispatcher) {
	if f == nil || d == nil {
		return
	}
	d.SubscribeAll(f.Handle)
}

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(eventType EventType) string {
	return f.prefix + "." + string(eventType)
}

// Handle publishes one event.
func (f *NATSForwarder) Handle(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := f.conn.Publish(f.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}
