package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kjannette/trahn-agent/internal/engine"
	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/rs/zerolog"
)

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateSleeping State = "sleeping"
	StateStopped  State = "stopped"
)

var ErrAlreadyStarted = errors.New("scheduler: already started")

// Cycler runs one full trading cycle.
type Cycler interface {
	RunCycle(ctx context.Context) error
}

// CycleScheduler runs cycles back to back with a fixed sleep in between.
// A failed cycle is recorded and never stops the loop.
type CycleScheduler struct {
	cycler   Cycler
	events   *eventlog.Log
	interval time.Duration
	warmup   func(ctx context.Context) error
	log      zerolog.Logger

	mu          sync.Mutex
	state       State
	lastCycleAt *time.Time
	cycles      int
	stopOnce    sync.Once
	stopCh      chan struct{}
	cancelCycle context.CancelFunc
	done        chan struct{}
}

type Option func(*CycleScheduler)

// WithWarmup runs fn once before the first cycle. Its error is logged and ignored.
func WithWarmup(fn func(ctx context.Context) error) Option {
	return func(s *CycleScheduler) { s.warmup = fn }
}

func NewCycleScheduler(c Cycler, events *eventlog.Log, interval time.Duration, logger zerolog.Logger, opts ...Option) *CycleScheduler {
	if interval <= 0 {
		interval = 180 * time.Second
	}
	s := &CycleScheduler{
		cycler:   c,
		events:   events,
		interval: interval,
		log:      logger.With().Str("component", "scheduler").Logger(),
		state:    StateIdle,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until Stop is called or ctx is done.
func (s *CycleScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	s.cancelCycle = cancel
	s.state = StateRunning
	s.mu.Unlock()

	defer func() {
		cancel()
		s.setState(StateStopped)
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

	if s.warmup != nil {
		if err := s.warmup(cycleCtx); err != nil {
			s.log.Warn().Err(err).Msg("warmup failed")
		}
	}

	for {
		if s.stopping() {
			return nil
		}
		s.setState(StateRunning)
		s.runOnce(cycleCtx)

		if s.stopping() {
			return nil
		}
		s.setState(StateSleeping)

		timer := time.NewTimer(s.interval)
		select {
		case <-s.stopCh:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *CycleScheduler) runOnce(ctx context.Context) {
	err := s.cycler.RunCycle(ctx)

	now := time.Now()
	s.mu.Lock()
	s.lastCycleAt = &now
	s.cycles++
	s.mu.Unlock()

	if err == nil {
		return
	}

	var opts []eventlog.Option
	opts = append(opts, eventlog.WithRaw(map[string]string{"error": err.Error()}))
	var ce *engine.CycleError
	if errors.As(err, &ce) {
		opts = append(opts, eventlog.WithCorrelation(ce.CorrelationID))
	}
	s.log.Error().Err(err).Msg("cycle failed")
	s.events.Record(ctx, models.LogError, fmt.Sprintf("Cycle error: %v", err), opts...)
}

// Stop requests shutdown and records why. An in-flight cycle runs to the
// end so a submitted swap is still settled in the ledger; no further cycle
// starts. Safe to call more than once; only the first call is recorded.
func (s *CycleScheduler) Stop(reason string) {
	s.stopOnce.Do(func() {
		s.events.Record(context.Background(), models.LogSystem, fmt.Sprintf("Agent shutting down (%s)", reason))
		s.log.Info().Str("reason", reason).Msg("scheduler stopping")

		s.mu.Lock()
		if s.state == StateIdle {
			s.state = StateStopped
			close(s.done)
		}
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// ForceStop stops like Stop and also cancels the in-flight cycle. A trade
// still being polled is then marked failed.
func (s *CycleScheduler) ForceStop(reason string) {
	s.Stop(reason)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCycle != nil {
		s.log.Warn().Msg("cancelling in-flight cycle")
		s.cancelCycle()
	}
}

// Done is closed once the scheduler has fully stopped.
func (s *CycleScheduler) Done() <-chan struct{} { return s.done }

func (s *CycleScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastCycleAt is when the most recent cycle finished, or nil.
func (s *CycleScheduler) LastCycleAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycleAt == nil {
		return nil
	}
	t := *s.lastCycleAt
	return &t
}

func (s *CycleScheduler) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

func (s *CycleScheduler) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *CycleScheduler) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		s.state = st
	}
}
