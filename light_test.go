package trafficlight_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fujiwara/trafficlight"
)

func newLight(t *testing.T, cfg *trafficlight.LightConfig, opts ...trafficlight.Option) *trafficlight.TrafficLight {
	t.Helper()
	light, err := trafficlight.NewTrafficLight(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return light
}

func fastLight(t *testing.T) *trafficlight.TrafficLight {
	t.Helper()
	light := newLight(t, &trafficlight.LightConfig{
		MinInterval: 30 * time.Millisecond,
		MaxInterval: 50 * time.Millisecond,
		Step:        time.Millisecond,
	})
	t.Cleanup(light.Stop)
	return light
}

func TestInitialPhase(t *testing.T) {
	light := newLight(t, nil)
	if p := light.GetCurrentPhase(); p != trafficlight.PhaseRed {
		t.Errorf("expected red, got %s", p)
	}
}

func TestNewTrafficLightConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *trafficlight.LightConfig
		expectErr bool
	}{
		{name: "zero value", cfg: &trafficlight.LightConfig{}},
		{name: "zero step", cfg: &trafficlight.LightConfig{MinInterval: time.Second, MaxInterval: 2 * time.Second}},
		{name: "min greater than max", cfg: &trafficlight.LightConfig{MinInterval: 3 * time.Second, MaxInterval: time.Second, Step: time.Second}, expectErr: true},
		{name: "range not a multiple of step", cfg: &trafficlight.LightConfig{MinInterval: 4 * time.Second, MaxInterval: 6 * time.Second, Step: 300 * time.Millisecond}, expectErr: true},
		{name: "negative step", cfg: &trafficlight.LightConfig{MinInterval: time.Second, MaxInterval: 2 * time.Second, Step: -time.Second}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			light, err := trafficlight.NewTrafficLight(tt.cfg)
			if (err != nil) != tt.expectErr {
				t.Fatalf("expected error: %v, got: %v", tt.expectErr, err)
			}
			if err != nil {
				return
			}
			for i := 0; i < 100; i++ {
				if d := light.NextInterval(); d <= 0 {
					t.Fatalf("non-positive interval %s", d)
				}
			}
		})
	}
}

func TestNewTrafficLightDefaultsZeroFields(t *testing.T) {
	cfg := &trafficlight.LightConfig{}
	light := newLight(t, cfg)
	for i := 0; i < 100; i++ {
		d := light.NextInterval()
		if d < trafficlight.DefaultMinInterval || d > trafficlight.DefaultMaxInterval {
			t.Fatalf("interval %s out of default range", d)
		}
	}
	if cfg.Step != 0 {
		t.Errorf("caller config was modified: %#v", cfg)
	}
}

func TestWithNilLogger(t *testing.T) {
	light := newLight(t, nil, trafficlight.WithLogger(nil))
	if p := light.GetCurrentPhase(); p != trafficlight.PhaseRed {
		t.Errorf("expected red, got %s", p)
	}
}

func TestSimulateTwice(t *testing.T) {
	light := fastLight(t)
	if err := light.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := light.Simulate(context.Background()); !errors.Is(err, trafficlight.ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStop(t *testing.T) {
	light := fastLight(t)
	light.Stop() // not started yet

	sub := light.Subscribe()
	if err := light.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	sub.Receive()
	light.Stop()
	select {
	case <-light.Done():
	default:
		t.Fatal("cycle is still running after Stop")
	}
	sub.TryReceive()
	time.Sleep(100 * time.Millisecond)
	if p, ok := sub.TryReceive(); ok {
		t.Errorf("phase %s sent after Stop", p)
	}
}

func TestCycleStopsOnContext(t *testing.T) {
	light := fastLight(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := light.Simulate(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-light.Done():
	case <-time.After(time.Second):
		t.Fatal("cycle did not stop on context cancel")
	}
}

func TestPhaseAlternation(t *testing.T) {
	light := fastLight(t)
	sub := light.Subscribe()
	if err := light.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	prev := sub.Receive()
	if prev != trafficlight.PhaseGreen {
		t.Errorf("first transition from red must be green, got %s", prev)
	}
	for i := 0; i < 10; i++ {
		p := sub.Receive()
		if p != prev.Next() {
			t.Fatalf("phases did not alternate: %s then %s", prev, p)
		}
		prev = p
	}
}

func TestWaitForGreen(t *testing.T) {
	light := fastLight(t)
	if err := light.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		light.WaitForGreen()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForGreen did not return")
	}
}

func TestWaitForGreenIgnoresRed(t *testing.T) {
	light := newLight(t, nil)
	done := make(chan struct{})
	go func() {
		light.WaitForGreen()
		close(done)
	}()
	for i := 0; i < 3; i++ {
		light.Broadcast(trafficlight.PhaseRed)
		select {
		case <-done:
			t.Fatal("WaitForGreen returned on red")
		case <-time.After(20 * time.Millisecond):
		}
	}
	light.Broadcast(trafficlight.PhaseGreen)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForGreen did not return on green")
	}
}

func TestWaitForGreenWithoutSimulate(t *testing.T) {
	light := newLight(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := light.WaitForGreenContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		light.WaitForGreen()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("WaitForGreen returned without a running cycle")
	case <-time.After(200 * time.Millisecond):
	}
	light.Broadcast(trafficlight.PhaseGreen) // release the goroutine
}

func TestConcurrentWaiters(t *testing.T) {
	const waiters = 20
	light := newLight(t, nil)
	var returned atomic.Int32
	released := make(chan int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			light.WaitForGreen()
			returned.Add(1)
			released <- i
		}(i)
	}

	light.Broadcast(trafficlight.PhaseRed)
	time.Sleep(50 * time.Millisecond)
	if n := returned.Load(); n != 0 {
		t.Fatalf("%d waiters returned on red", n)
	}

	// each green delivery releases exactly one waiter
	seen := make(map[int]bool)
	for i := 0; i < waiters; i++ {
		light.Broadcast(trafficlight.PhaseGreen)
		select {
		case w := <-released:
			if seen[w] {
				t.Fatalf("waiter %d returned twice", w)
			}
			seen[w] = true
		case <-time.After(time.Second):
			t.Fatalf("green %d released no waiter", i)
		}
	}
	wg.Wait()
	if n := returned.Load(); n != waiters {
		t.Errorf("expected %d waiters returned, got %d", waiters, n)
	}
}

func TestConcurrentWaitersWithCycle(t *testing.T) {
	const waiters = 20
	light := fastLight(t)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			light.WaitForGreen()
		}()
	}
	if err := light.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("not all waiters returned")
	}
}

func TestNextIntervalBounds(t *testing.T) {
	light := newLight(t, nil, trafficlight.WithRand(rand.New(rand.NewPCG(1, 2))))
	var hitMin, hitMax bool
	for i := 0; i < 1000; i++ {
		d := light.NextInterval()
		if d < trafficlight.DefaultMinInterval || d > trafficlight.DefaultMaxInterval {
			t.Fatalf("interval %s out of range", d)
		}
		if d%trafficlight.DefaultStep != 0 {
			t.Fatalf("interval %s is not a multiple of %s", d, trafficlight.DefaultStep)
		}
		hitMin = hitMin || d == trafficlight.DefaultMinInterval
		hitMax = hitMax || d == trafficlight.DefaultMaxInterval
	}
	if !hitMin || !hitMax {
		t.Errorf("bounds are not inclusive: min=%v max=%v", hitMin, hitMax)
	}
}

func TestMeasuredInterval(t *testing.T) {
	const (
		minInterval = 20 * time.Millisecond
		maxInterval = 40 * time.Millisecond
		flips       = 50
	)
	light := newLight(t, &trafficlight.LightConfig{
		MinInterval: minInterval,
		MaxInterval: maxInterval,
		Step:        time.Millisecond,
	})
	t.Cleanup(light.Stop)
	sub := light.Subscribe()
	if err := light.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	sub.Receive()
	last := time.Now()
	within := 0
	for i := 0; i < flips; i++ {
		sub.Receive()
		now := time.Now()
		d := now.Sub(last)
		last = now
		if d >= minInterval-2*time.Millisecond && d <= maxInterval+10*time.Millisecond {
			within++
		}
	}
	if within < flips*9/10 {
		t.Errorf("only %d of %d intervals within [%s, %s]", within, flips, minInterval, maxInterval)
	}
}
