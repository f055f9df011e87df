package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/notify"
)

// Publish announces a change on the owner's channel so every replica's
// listeners of that user refetch.
func (s *Store) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	if ev.UserID == "" {
		return fmt.Errorf("change event without user")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := s.client.Publish(ctx, ChangesChannel(ev.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe implements notify.Notifier over Redis pub/sub. The access token is
// not needed: events only ever come from this service.
func (s *Store) Subscribe(ctx context.Context, userID, _ string, h notify.Handler) (notify.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("subscribe: user is required")
	}

	ps := s.client.Subscribe(ctx, ChangesChannel(userID))
	// Wait for the confirmation so no publish is missed after we return.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to changes: %w", err)
	}

	sub := &pubsubSubscription{close: ps.Close, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.UserID != userID {
				continue
			}
			h(ev)
		}
	}()
	return sub, nil
}

type pubsubSubscription struct {
	once  sync.Once
	close func() error
	done  chan struct{}
	err   error
}

// Close stops delivery. No handler runs after Close returns.
func (p *pubsubSubscription) Close() error {
	p.once.Do(func() {
		p.err = p.close()
		<-p.done
	})
	return p.err
}
