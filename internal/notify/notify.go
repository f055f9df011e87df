// Package notify delivers "your bookmarks changed" signals to long-lived
// listeners. Signals carry no row data: listeners refetch.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// Handler receives change signals. It must not block for long.
type Handler func(domain.ChangeEvent)

// Subscription is an active listener registration.
type Subscription interface {
	Close() error
}

// Notifier opens per-user change subscriptions. accessToken lets sources
// that enforce row-level policies see only the user's rows.
type Notifier interface {
	Subscribe(ctx context.Context, userID, accessToken string, h Handler) (Subscription, error)
}

// Publisher announces a change made by this process.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// Fanout subscribes to every source and forwards all of their signals.
// A source that fails to subscribe is skipped as long as one succeeds.
type Fanout struct {
	sources []Notifier
	onError func(error)
}

func NewFanout(onError func(error), sources ...Notifier) *Fanout {
	f := &Fanout{onError: onError}
	for _, s := range sources {
		if s != nil {
			f.sources = append(f.sources, s)
		}
	}
	return f
}

// Subscribe implements Notifier.
func (f *Fanout) Subscribe(ctx context.Context, userID, accessToken string, h Handler) (Subscription, error) {
	if len(f.sources) == 0 {
		return nil, errors.New("notify: no change sources configured")
	}

	var (
		subs []Subscription
		errs []error
	)
	for _, src := range f.sources {
		sub, err := src.Subscribe(ctx, userID, accessToken, h)
		if err != nil {
			errs = append(errs, err)
			if f.onError != nil {
				f.onError(err)
			}
			continue
		}
		subs = append(subs, sub)
	}
	if len(subs) == 0 {
		return nil, errors.Join(errs...)
	}
	return &multiSubscription{subs: subs}, nil
}

type multiSubscription struct {
	once sync.Once
	subs []Subscription
	err  error
}

// SetAccessToken forwards a refreshed token to the sources that need it.
func (m *multiSubscription) SetAccessToken(token string) error {
	var errs []error
	for _, s := range m.subs {
		if u, ok := s.(TokenUpdater); ok {
			if err := u.SetAccessToken(token); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiSubscription) Close() error {
	m.once.Do(func() {
		var errs []error
		for _, s := range m.subs {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}
