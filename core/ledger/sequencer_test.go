package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leadfive/native/registry"
)

func TestSequencerSerialisesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	seq := NewSequencer(e, 4)
	seq.Start()

	if err := seq.Do(ctx, func(e *Engine) error {
		_, err := e.Register(ctx, registry.Request{ID: addr(1), Tier: 1})
		return err
	}); err != nil {
		t.Fatalf("register root: %v", err)
	}

	root := addr(1)
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			errs <- seq.Do(ctx, func(e *Engine) error {
				_, err := e.Contribute(ctx, Contribution{Payer: addr(n), Tier: 1, Referrer: &root})
				return err
			})
		}(byte(i + 2))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent purchase: %v", err)
		}
	}

	var participants int
	if err := seq.Do(ctx, func(e *Engine) error {
		participants = e.Status().Participants
		return nil
	}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if participants != 41 {
		t.Fatalf("participants %d, want 41", participants)
	}

	seq.Stop()
	if err := seq.Do(ctx, func(*Engine) error { return nil }); !errors.Is(err, ErrSequencerStopped) {
		t.Fatalf("expected ErrSequencerStopped, got %v", err)
	}
}

func TestSequencerHonoursContextWhileQueued(t *testing.T) {
	e, _ := newEngine(t)
	seq := NewSequencer(e, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// not started, so the single queue slot stays occupied
	queued := job{fn: func(*Engine) error { return nil }, done: make(chan error, 1)}
	seq.jobs <- queued
	if err := seq.Do(ctx, func(*Engine) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	seq.Stop()
	if err := <-queued.done; err != nil {
		t.Fatalf("queued job: %v", err)
	}
}
