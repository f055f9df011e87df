package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// ErrStop ends a Keeper from inside its task without being logged as a failure.
var ErrStop = errors.New("scheduler: stop")

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

// Keeper runs a task on a fixed interval until stopped. Unlike a reloader it
// does not run the task on start: the caller has just done that work.
type Keeper struct {
	name     string
	task     Task
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewKeeper creates a keeper running task every interval.
func NewKeeper(name string, task Task, log logger.Logger, interval time.Duration) *Keeper {
	return &Keeper{
		name:     name,
		task:     task,
		logger:   log.With(logger.String("job", name)),
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic runs.
func (k *Keeper) Start(ctx context.Context) error {
	if k.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	ticker := time.NewTicker(k.interval)
	go func() {
		defer close(k.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := k.task(ctx)
				switch {
				case errors.Is(err, ErrStop):
					k.logger.Debug("job finished")
					return
				case err != nil:
					k.logger.Warn("job run failed", logger.Error(err))
				}
			case <-k.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the keeper. It is safe to call more than once.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
}

// Done is closed once the keeper has stopped running.
func (k *Keeper) Done() <-chan struct{} { return k.done }
