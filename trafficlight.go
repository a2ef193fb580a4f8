package trafficlight

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var Version = "dev"

type App struct {
	Config *Config

	light     *TrafficLight
	responder *Responder
	hooks     *HookRunner
}

func Run(ctx context.Context, cli *CLI) error {
	SetDebug(cli.Debug)
	cfg, err := LoadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

func NewApp(cfg *Config) (*App, error) {
	light, err := NewTrafficLight(cfg.Light)
	if err != nil {
		return nil, err
	}
	hooks, err := NewHookRunner(light, cfg.Hooks)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:    cfg,
		light:     light,
		responder: NewResponder(cfg.Responder, light),
		hooks:     hooks,
	}, nil
}

func (a *App) Light() *TrafficLight {
	return a.light
}

// Run starts the light cycle, the responder and the hook runner, and blocks
// until ctx is done or the responder fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.light.Simulate(ctx); err != nil {
		return err
	}
	defer a.light.Stop()
	logger.Info("traffic light started", "version", Version, "phase", a.light.GetCurrentPhase())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := a.responder.Run(ctx); err != nil {
			return fmt.Errorf("responder failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return a.hooks.Run(ctx)
	})
	return eg.Wait()
}
