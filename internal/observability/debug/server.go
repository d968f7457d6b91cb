// Package debug serves a local diagnostics listener for the running daemon:
// a liveness probe, the manager status as JSON and the pprof handlers.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"sync"
	"time"

	rtsup "autopilot/internal/runtime/supervisor"
	logx "autopilot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Enabled              bool
	Addr                 string
	BlockProfileRate     int
	MutexProfileFraction int
}

// Probe reports the daemon state. Healthy false turns /healthz into a 503.
type Probe func() (status any, healthy bool)

type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	cfg   Config
	probe Probe

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(probe Probe, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{probe: probe, log: log.With(logx.String("comp", "debug"))}
}

// Reconfigure applies cfg, starting, stopping or rebinding the listener as
// needed. Safe to call on every config reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)

	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case running && prev.Addr == cfg.Addr:
		return nil
	case running:
		s.Stop(ctx)
	}
	return s.start(ctx, cfg.Addr)
}

func (s *Service) start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Warn("debug listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	if !isLoopback(ln.Addr()) {
		s.log.Warn("debug listener is reachable beyond localhost", logx.String("addr", ln.Addr().String()))
	}

	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))

	s.mu.Lock()
	s.ln, s.srv, s.sup = ln, srv, sup
	s.mu.Unlock()

	sup.Go("debug.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	s.log.Info("debug listener enabled", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the listener down. It is a no-op when not running.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup, ln := s.srv, s.sup, s.ln
	s.srv, s.sup, s.ln = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("debug shutdown", logx.Err(err))
	}
	if err := sup.Stop(shutdownCtx); err != nil {
		s.log.Warn("debug serve", logx.Err(err))
	}
	s.log.Info("debug listener disabled", logx.String("addr", ln.Addr().String()))
}

// Addr reports the bound address, or "" when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, ok := s.check()
		if !ok {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		st, _ := s.check()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			s.log.Debug("status encode", logx.Err(err))
		}
	})
	mux.HandleFunc("/debug/pprof/", hpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	return mux
}

func (s *Service) check() (any, bool) {
	if s.probe == nil {
		return struct{}{}, true
	}
	return s.probe()
}

func isLoopback(a net.Addr) bool {
	tcp, ok := a.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}
