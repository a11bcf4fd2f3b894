// Package web serves the slash-command ingress and the operational endpoints.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	logx "slacktranslator/pkg/logx"
)

// Config controls the ingress server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Debug enables verbose request logging and /debug/jobs.
	Debug bool
}

// Deps are the handlers' collaborators.
type Deps struct {
	Dispatcher Submitter
	Cache      Pinger
	Debug      map[string]Section
}

type Server struct {
	log    logx.Logger
	server *http.Server
	cfg    Config
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	// Eager mode answers only after both deliveries, so leave room for
	// the outbound calls.
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	ih := &IngressHandler{Dispatcher: deps.Dispatcher, Log: log.With(logx.String("comp", "ingress")), Debug: cfg.Debug}
	hh := &HealthHandler{Log: log.With(logx.String("comp", "health")), Cache: deps.Cache}
	var dh *DebugHandler
	if cfg.Debug {
		dh = &DebugHandler{Sections: deps.Debug}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ih, hh, dh, log, cfg.Debug),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{server: srv, cfg: cfg, log: log}
}

// Handler exposes the routed handler for tests.
func (ws *Server) Handler() http.Handler { return ws.server.Handler }

// Run listens until ctx is done, then shuts down gracefully.
func (ws *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.server.Addr)
	if err != nil {
		return err
	}
	ws.log.Info("http server started", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- ws.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ws.cfg.ShutdownTimeout)
	defer cancel()
	if err := ws.server.Shutdown(sctx); err != nil {
		ws.log.Warn("http server forced to shutdown", logx.Err(err))
		_ = ws.server.Close()
	}
	<-errCh
	ws.log.Info("http server exited gracefully")
	return nil
}
