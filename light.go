package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

var ErrAlreadyStarted = errors.New("traffic light cycle already started")

type TrafficLight struct {
	minInterval time.Duration
	maxInterval time.Duration
	step        time.Duration

	currentPhase atomic.Value // Phase
	phases       *Mailbox[Phase]

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers []*Mailbox[Phase]

	rand   *rand.Rand
	logger *slog.Logger
}

type Option func(*TrafficLight)

// WithLogger sets the logger used for cycle diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *TrafficLight) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRand replaces the random source used to draw cycle intervals.
func WithRand(r *rand.Rand) Option {
	return func(t *TrafficLight) {
		t.rand = r
	}
}

// NewTrafficLight returns a red light. Zero fields of cfg take their defaults;
// a nil cfg uses DefaultLightConfig.
func NewTrafficLight(cfg *LightConfig, opts ...Option) (*TrafficLight, error) {
	if cfg == nil {
		cfg = DefaultLightConfig()
	}
	c := *cfg
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid light config: %w", err)
	}
	cfg = &c
	t := &TrafficLight{
		minInterval: cfg.MinInterval,
		maxInterval: cfg.MaxInterval,
		step:        cfg.Step,
		phases:      NewMailbox[Phase](),
		done:        make(chan struct{}),
		logger:      logger,
	}
	t.currentPhase.Store(PhaseRed)
	for _, opt := range opts {
		opt(t)
	}
	if t.rand == nil {
		t.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	t.logger = t.logger.With("module", "trafficlight")
	return t, nil
}

// GetCurrentPhase returns the phase last computed by the cycle.
// It is not ordered with respect to deliveries seen by WaitForGreen: a caller
// may observe a phase that has not been delivered yet, or one already
// superseded.
func (t *TrafficLight) GetCurrentPhase() Phase {
	return t.currentPhase.Load().(Phase)
}

// Simulate starts the phase cycle in its own goroutine and returns
// immediately. The cycle runs until ctx is done or Stop is called.
func (t *TrafficLight) Simulate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	go t.cycleThroughPhases(ctx)
	return nil
}

// Stop cancels the cycle and waits for it to exit.
// Calling Stop on a light that was never started does nothing.
func (t *TrafficLight) Stop() {
	t.mu.Lock()
	started, cancel := t.started, t.cancel
	t.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-t.done
}

// Done returns a channel closed when the cycle has exited.
func (t *TrafficLight) Done() <-chan struct{} {
	return t.done
}

// WaitForGreen blocks until a green phase is delivered. Red deliveries are
// discarded. Without a running cycle it blocks forever.
func (t *TrafficLight) WaitForGreen() {
	for t.phases.Receive() != PhaseGreen {
	}
}

// WaitForGreenContext is WaitForGreen with cancellation.
func (t *TrafficLight) WaitForGreenContext(ctx context.Context) error {
	for {
		p, err := t.phases.ReceiveContext(ctx)
		if err != nil {
			return err
		}
		if p == PhaseGreen {
			return nil
		}
	}
}

// Subscribe returns a mailbox that receives every phase sent by the cycle,
// independently of WaitForGreen callers. It keeps latest-value semantics.
func (t *TrafficLight) Subscribe() *Mailbox[Phase] {
	m := NewMailbox[Phase]()
	t.mu.Lock()
	t.subscribers = append(t.subscribers, m)
	t.mu.Unlock()
	return m
}

func (t *TrafficLight) cycleThroughPhases(ctx context.Context) {
	defer close(t.done)
	t.logger.Info("cycle started", "phase", t.GetCurrentPhase())
	timer := time.NewTimer(t.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("cycle stopped", "phase", t.GetCurrentPhase())
			return
		case <-timer.C:
		}
		next := t.GetCurrentPhase().Next()
		t.currentPhase.Store(next)
		t.send(next)

		d := t.nextInterval()
		t.logger.Debug("phase sent", "phase", next, "next_in", d.String())
		timer.Reset(d)
	}
}

func (t *TrafficLight) send(p Phase) {
	t.phases.Send(p)
	t.mu.Lock()
	subs := t.subscribers
	t.mu.Unlock()
	for _, s := range subs {
		s.Send(p)
	}
}

// nextInterval draws a uniform duration from [minInterval, maxInterval] in
// multiples of step. Validate guarantees the range is a whole number of steps.
// Only the cycle goroutine calls it.
func (t *TrafficLight) nextInterval() time.Duration {
	n := int64((t.maxInterval - t.minInterval) / t.step)
	return t.minInterval + time.Duration(t.rand.Int64N(n+1))*t.step
}
