package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrSequencerStopped is returned for work submitted after Stop.
var ErrSequencerStopped = errors.New("ledger: sequencer stopped")

// DefaultQueueDepth bounds the number of operations waiting for the writer.
const DefaultQueueDepth = 256

type job struct {
	fn   func(*Engine) error
	done chan error
}

// Sequencer owns the engine and runs every submitted operation to completion
// on a single goroutine, in submission order.
type Sequencer struct {
	engine *Engine
	jobs   chan job
	quit   chan struct{}
	exited chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSequencer wraps engine. Call Start before submitting work.
func NewSequencer(engine *Engine, depth int) *Sequencer {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Sequencer{
		engine: engine,
		jobs:   make(chan job, depth),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (s *Sequencer) Start() {
	s.startOnce.Do(func() { go s.loop() })
}

// Stop drains queued work and waits for the writer to exit.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.Start()
		<-s.exited
	})
}

func (s *Sequencer) loop() {
	defer close(s.exited)
	for {
		select {
		case j := <-s.jobs:
			j.done <- j.fn(s.engine)
		case <-s.quit:
			for {
				select {
				case j := <-s.jobs:
					j.done <- j.fn(s.engine)
				default:
					return
				}
			}
		}
	}
}

// Do queues fn and waits for its result. The context bounds the wait for a
// queue slot only: once accepted an operation always runs to completion and
// Do returns its outcome.
func (s *Sequencer) Do(ctx context.Context, fn func(*Engine) error) error {
	select {
	case <-s.quit:
		return ErrSequencerStopped
	default:
	}
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrSequencerStopped
	}
	select {
	case err := <-j.done:
		return err
	case <-s.exited:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrSequencerStopped
		}
	}
}
