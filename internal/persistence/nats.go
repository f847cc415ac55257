package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
)

// NATS wraps a NATS connection and its JetStream context.
type NATS struct {
	Conn *nats.Conn
	JS   jetstream.JetStream
}

// NewNATS connects when a URL is configured. An empty URL returns an
// unconnected wrapper.
func NewNATS(cfg config.NATSConfig, logger *zap.Logger) (*NATS, error) {
	if cfg.URL == "" {
		logger.Info("NATS_URL not provided; event forwarding disabled")
		return &NATS{}, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("dispatch-service"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return &NATS{Conn: conn, JS: js}, nil
}

// ClaimBucket creates or opens the KV bucket backing the claim guard.
func (n *NATS) ClaimBucket(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	if n == nil || n.JS == nil {
		return nil, errors.New("nats not configured")
	}
	return n.JS.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
}

// Enabled reports whether a connection exists.
func (n *NATS) Enabled() bool {
	return n != nil && n.Conn != nil
}

// Close drains the connection.
func (n *NATS) Close() {
	if n.Enabled() {
		_ = n.Conn.Drain()
	}
}

// Ping round-trips to the server.
func (n *NATS) Ping(ctx context.Context) error {
	if !n.Enabled() {
		return errors.New("nats client not configured")
	}
	return n.Conn.FlushWithContext(ctx)
}
