package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

func waitDone(t *testing.T, k *Keeper) {
	t.Helper()
	select {
	case <-k.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop")
	}
}

func TestKeeper_RunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	k := NewKeeper("test", func(context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	}, logger.Nop(), 5*time.Millisecond)

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		}
		time.Sleep(time.Millisecond)
	}

	k.Stop()
	k.Stop()
	waitDone(t, k)
}

func TestKeeper_DoesNotRunOnStart(t *testing.T) {
	var runs atomic.Int32
	k := NewKeeper("test", func(context.Context) error {
		runs.Add(1)
		return nil
	}, logger.Nop(), time.Hour)

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	k.Stop()
	waitDone(t, k)

	if n := runs.Load(); n != 0 {
		t.Errorf("expected no run, got %d", n)
	}
}

func TestKeeper_TaskCanStop(t *testing.T) {
	var runs atomic.Int32
	k := NewKeeper("test", func(context.Context) error {
		runs.Add(1)
		return ErrStop
	}, logger.Nop(), 5*time.Millisecond)

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, k)

	if n := runs.Load(); n != 1 {
		t.Errorf("expected exactly one run, got %d", n)
	}
}

func TestKeeper_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	k := NewKeeper("test", func(context.Context) error { return nil }, logger.Nop(), time.Hour)
	if err := k.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()
	waitDone(t, k)
}

func TestKeeper_RejectsZeroInterval(t *testing.T) {
	k := NewKeeper("test", func(context.Context) error { return nil }, logger.Nop(), 0)
	if err := k.Start(context.Background()); err == nil {
		t.Fatal("expected an error for a zero interval")
	}
}
