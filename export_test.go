package trafficlight

import (
	"context"
	"time"
)

var (
	NewExpectCodeFunc = newExpectCodeFunc
	NewEvent          = newEvent
	WithEvent         = withEvent
)

func (t *TrafficLight) NextInterval() time.Duration {
	return t.nextInterval()
}

// Broadcast delivers p the way the cycle does, without touching currentPhase.
func (t *TrafficLight) Broadcast(p Phase) {
	t.send(p)
}

func (t *TrafficLight) SetCurrentPhase(p Phase) {
	t.currentPhase.Store(p)
}

func EventFromContext(ctx context.Context) *Event {
	return eventFromContext(ctx)
}
