package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/testutil"
)

func TestDispatcherRunsEveryHandler(t *testing.T) {
	ctx := context.Background()
	d := NewInMemoryDispatcher()

	var typed, all []EventType
	d.Subscribe(EventAppointmentClaimed, func(_ context.Context, e Event) error {
		typed = append(typed, e.Type)
		return errors.New("boom")
	})
	d.SubscribeAll(func(_ context.Context, e Event) error {
		all = append(all, e.Type)
		return nil
	})

	err := d.Publish(ctx, New(EventAppointmentClaimed, "a1", time.Now(), nil))
	assert.ErrorContains(t, err, "boom")
	require.NoError(t, d.Publish(ctx, New(EventRoundOpened, "a1", time.Now(), nil)))

	assert.Equal(t, []EventType{EventAppointmentClaimed}, typed)
	assert.Equal(t, []EventType{EventAppointmentClaimed, EventRoundOpened}, all)
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false
	d.Subscribe(EventClaimRejected, func(context.Context, Event) error {
		panic("nil contact")
	})
	d.SubscribeAll(func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), New(EventClaimRejected, "a1", time.Now(), nil))

	assert.ErrorContains(t, err, "panic: nil contact")
	assert.True(t, reached)
}

func TestNATSForwarderPublishesJSON(t *testing.T) {
	_, nc := testutil.StartEmbeddedNATS(t)
	sub, err := nc.SubscribeSync("dispatch.events.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	d := NewInMemoryDispatcher()
	forwarder := NewNATSForwarder(nc, "")
	forwarder.Register(d)

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	event := New(EventAppointmentStalled, "appt-7", at, AppointmentStalledPayload{Round: 3, Hub: "STL_MO", Reason: StallRoundsExhausted})
	require.NoError(t, d.Publish(context.Background(), event))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dispatch.events.appointment_stalled", msg.Subject)

	var decoded struct {
		ID            string `json:"id"`
		AppointmentID string `json:"appointment_id"`
		Payload       struct {
			Round  int    `json:"round"`
			Reason string `json:"reason"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "appt-7", decoded.AppointmentID)
	assert.Equal(t, 3, decoded.Payload.Round)
	assert.Equal(t, "rounds_exhausted", decoded.Payload.Reason)
}
