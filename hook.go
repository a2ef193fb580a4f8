package trafficlight

import (
	"context"
	"errors"
	"fmt"
)

type Hook interface {
	Name() string
	Run(ctx context.Context) error
}

func NewHook(cfg *HookConfig) (Hook, error) {
	switch {
	case cfg.Command != nil:
		return NewCommandHook(cfg)
	case cfg.TCP != nil:
		return NewTCPHook(cfg)
	case cfg.HTTP != nil:
		return NewHTTPHook(cfg)
	default:
		return nil, fmt.Errorf("hook %s: no hook kind configured", cfg.Name)
	}
}

type phaseHook struct {
	Hook
	on Phase // empty matches both phases
}

// HookRunner fires hooks for each phase delivered to its subscription.
type HookRunner struct {
	hooks  []phaseHook
	phases *Mailbox[Phase]
	seq    int64
}

func NewHookRunner(light *TrafficLight, cfgs []*HookConfig) (*HookRunner, error) {
	r := &HookRunner{}
	for _, c := range cfgs {
		h, err := NewHook(c)
		if err != nil {
			return nil, err
		}
		r.hooks = append(r.hooks, phaseHook{Hook: h, on: Phase(c.Phase)})
	}
	if len(r.hooks) > 0 {
		r.phases = light.Subscribe()
	}
	return r, nil
}

func (r *HookRunner) Run(ctx context.Context) error {
	if len(r.hooks) == 0 {
		return nil
	}
	for {
		p, err := r.phases.ReceiveContext(ctx)
		if err != nil {
			return nil
		}
		r.seq++
		e := newEvent(p, r.seq)
		if err := r.Dispatch(ctx, e); err != nil {
			newLoggerFromContext(withEvent(ctx, e)).Warn("some hooks failed", "error", err.Error())
		}
	}
}

// Dispatch runs every hook matching the event phase. All matching hooks run
// even if some fail.
func (r *HookRunner) Dispatch(ctx context.Context, e *Event) error {
	ctx = withEvent(ctx, e)
	var errs error
	for _, h := range r.hooks {
		if h.on != "" && h.on != e.Phase {
			continue
		}
		if err := h.Run(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("hook %s failed: %w", h.Name(), err))
		}
	}
	return errs
}
