package trafficlight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/time/rate"
)

// Responder exposes a TrafficLight over HTTP.
//
//	GET /       200 while green, 503 while red
//	GET /phase  current phase as JSON
//	GET /wait   blocks until the light delivers green
type Responder struct {
	addr    string
	light   *TrafficLight
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewResponder(cfg *ResponderConfig, light *TrafficLight) *Responder {
	r := &Responder{
		addr:   cfg.Addr,
		light:  light,
		logger: logger.With("module", "responder"),
	}
	if cfg.WaitRate > 0 {
		burst := cfg.WaitBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.WaitRate), burst)
	}
	return r
}

func (r *Responder) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen %s: %w", r.addr, err)
	}
	return r.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (r *Responder) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:     r.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	r.logger.Info("listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Responder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", r.handleStatus)
	mux.HandleFunc("/phase", r.handlePhase)
	mux.HandleFunc("/wait", r.handleWait)
	return mux
}

func (r *Responder) handleStatus(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	code := http.StatusOK
	msg := "OK"
	switch p := r.light.GetCurrentPhase(); p {
	case PhaseGreen:
	case PhaseRed:
		code = http.StatusServiceUnavailable
		msg = "Service Unavailable"
	default:
		r.logger.Warn("unknown phase", "phase", p)
		code = http.StatusInternalServerError
		msg = "Internal Server Error"
	}
	w.WriteHeader(code)
	fmt.Fprintln(w, msg)
}

func (r *Responder) handlePhase(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Phase Phase `json:"phase"`
	}{r.light.GetCurrentPhase()})
}

func (r *Responder) handleWait(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if r.limiter != nil && !r.limiter.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprintln(w, "Too Many Requests")
		return
	}
	if err := r.light.WaitForGreenContext(req.Context()); err != nil {
		r.logger.Debug("wait canceled", "error", err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "Service Unavailable")
		return
	}
	fmt.Fprintln(w, PhaseGreen)
}
