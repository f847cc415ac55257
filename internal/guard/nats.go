package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS holds keys in a JetStream KV bucket. Create only succeeds when the key
// is absent; the bucket TTL expires keys of crashed holders.
type NATS struct {
	kv    jetstream.KeyValue
	owner string
	wait  time.Duration
}

// NewNATS builds a guard on kv. owner is written as the key value.
func NewNATS(kv jetstream.KeyValue, owner string, wait time.Duration) *NATS {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &NATS{kv: kv, owner: owner, wait: wait}
}

func (n *NATS) Acquire(ctx context.Context, key string) (Release, error) {
	revision, err := backoff.Retry(ctx, func() (uint64, error) {
		rev, err := n.kv.Create(ctx, key, []byte(n.owner))
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrBusy
		}
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("guard: kv create %s: %w", key, err))
		}
		return rev, nil
	}, pollOptions(n.wait)...)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = n.kv.Delete(ctx, key, jetstream.LastRevision(revision))
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				err = nil
			}
		})
		return err
	}, nil
}
