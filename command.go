package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/Songmu/wrapcommander"
	"github.com/mattn/go-shellwords"
)

type CommandHookConfig struct {
	Run string `yaml:"run"`
}

type CommandHook struct {
	name     string
	commands []string
	timeout  time.Duration
}

func NewCommandHook(cfg *HookConfig) (*CommandHook, error) {
	cmds, err := shellwords.Parse(cfg.Command.Run)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %s %w", cfg.Command.Run, err)
	}
	return &CommandHook{
		name:     cfg.Name,
		commands: cmds,
		timeout:  cfg.Timeout,
	}, nil
}

func (c *CommandHook) Name() string {
	return c.name
}

func (c *CommandHook) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	logger := newLoggerFromContext(ctx).With(
		"name", c.name,
		"module", "commandhook",
		"commands", fmt.Sprintf("%v", c.commands),
	)
	if len(c.commands) == 0 {
		return errors.New("no command")
	}
	logger.Debug("executing command")
	cmd := exec.CommandContext(ctx, c.commands[0], c.commands[1:]...)
	cmd.Env = os.Environ()
	if e := eventFromContext(ctx); e != nil {
		// hooks see which transition fired them
		cmd.Env = append(cmd.Env, e.Env()...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 3 * time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.Info("command failed",
			slog.Int("exit_code", wrapcommander.ResolveExitCode(err)),
			slog.String("output", string(out)),
			slog.String("error", err.Error()),
		)
		return err
	}
	logger.Debug("command succeeded",
		slog.Int("exit_code", wrapcommander.ResolveExitCode(err)),
		slog.String("output", string(out)),
	)
	return nil
}
