package trafficlight

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"
)

var (
	DefaultTCPMaxBytes = 32 * 1024
)

type TCPHookConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	Send               string `yaml:"send"`
	MaxBytes           int    `yaml:"max_bytes"`
	ExpectPattern      string `yaml:"expect_pattern"`
	TLS                bool   `yaml:"tls"`
	NoCheckCertificate bool   `yaml:"no_check_certificate"`
}

// TCPHook writes a line to a TCP endpoint on each phase transition.
// "{{phase}}" and "{{event_id}}" in Send are replaced with event values.
type TCPHook struct {
	Host               string
	Port               string
	Send               string
	MaxBytes           int
	ExpectPattern      *regexp.Regexp
	Timeout            time.Duration
	TLS                bool
	NoCheckCertificate bool

	name string
}

func (h *TCPHook) Name() string {
	return h.name
}

func NewTCPHook(cfg *HookConfig) (*TCPHook, error) {
	h := &TCPHook{
		name:               cfg.Name,
		Timeout:            cfg.Timeout,
		MaxBytes:           cfg.TCP.MaxBytes,
		TLS:                cfg.TCP.TLS,
		NoCheckCertificate: cfg.TCP.NoCheckCertificate,
		Host:               cfg.TCP.Host,
		Port:               cfg.TCP.Port,
		Send:               cfg.TCP.Send,
	}
	if h.Send == "" {
		h.Send = "{{phase}}\n"
	}
	if cfg.TCP.ExpectPattern != "" {
		pt, err := regexp.Compile(cfg.TCP.ExpectPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid expect_pattern: %w", err)
		}
		h.ExpectPattern = pt
	}
	if h.MaxBytes == 0 {
		h.MaxBytes = DefaultTCPMaxBytes
	}
	return h, nil
}

func (h *TCPHook) payload(e *Event) string {
	if e == nil {
		return h.Send
	}
	return strings.NewReplacer("{{phase}}", string(e.Phase), "{{event_id}}", e.ID).Replace(h.Send)
}

func (h *TCPHook) Run(ctx context.Context) error {
	logger := newLoggerFromContext(ctx).With("name", h.name, "module", "tcphook")
	payload := h.payload(eventFromContext(ctx))

	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	addr := net.JoinHostPort(h.Host, h.Port)
	conn, err := dialTCP(ctx, addr, h.TLS, h.NoCheckCertificate, h.Timeout)
	if err != nil {
		return fmt.Errorf("tcp connect failed: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(h.Timeout))

	logger.Debug("connected", "addr", addr)
	if _, err := io.WriteString(conn, payload); err != nil {
		return fmt.Errorf("tcp send failed: %w", err)
	}
	if h.ExpectPattern == nil {
		return nil
	}
	buf := make([]byte, h.MaxBytes)
	n, err := bufio.NewReader(conn).Read(buf)
	if err != nil {
		return fmt.Errorf("tcp read failed: %w", err)
	}
	logger.Debug("read", "response", string(buf[:n]))
	if !h.ExpectPattern.Match(buf[:n]) {
		return fmt.Errorf("tcp unexpected response: %s", string(buf[:n]))
	}
	return nil
}

func dialTCP(ctx context.Context, address string, useTLS bool, noCheckCertificate bool, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	if useTLS {
		td := &tls.Dialer{
			NetDialer: d,
			Config: &tls.Config{
				InsecureSkipVerify: noCheckCertificate,
			},
		}
		return td.DialContext(ctx, "tcp", address)
	}
	return d.DialContext(ctx, "tcp", address)
}
