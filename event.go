package trafficlight

import (
	"context"

	"github.com/google/uuid"
)

type eventKeyType string

const eventKey eventKeyType = "event"

// Event describes one phase transition handed to hooks.
type Event struct {
	ID    string
	Phase Phase
	Seq   int64
}

func newEvent(p Phase, seq int64) *Event {
	return &Event{
		ID:    uuid.Must(uuid.NewV7()).String(),
		Phase: p,
		Seq:   seq,
	}
}

func (e *Event) Env() []string {
	return []string{
		"TRAFFICLIGHT_EVENT_ID=" + e.ID,
		"TRAFFICLIGHT_PHASE=" + string(e.Phase),
	}
}

func withEvent(ctx context.Context, e *Event) context.Context {
	return context.WithValue(ctx, eventKey, e)
}

func eventFromContext(ctx context.Context) *Event {
	if e, ok := ctx.Value(eventKey).(*Event); ok {
		return e
	}
	return nil
}
