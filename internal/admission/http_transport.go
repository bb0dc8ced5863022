// Package admission provides an HTTP transport.
package admission

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPTransport serves the admission and admin APIs over HTTP.
type HTTPTransport struct {
	addr           string
	srv            *http.Server
	limiter        *Limiter
	sink           *MemorySink
	prom           *PromMetrics
	mem            *InMemoryMetrics
	appReady       func() bool
	inflight       *InFlight
	logger         Logger
	enableAuth     bool
	adminToken     string
	maxBodyBytes   int64
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	mux            http.Handler
	mu             sync.Mutex
}

// HTTPOptions bundles transport wiring.
type HTTPOptions struct {
	Addr           string
	Limiter        *Limiter
	Sink           *MemorySink
	Prom           *PromMetrics
	Mem            *InMemoryMetrics
	Ready          func() bool
	InFlight       *InFlight
	Logger         Logger
	EnableAuth     bool
	AdminToken     string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// NewHTTPTransport constructs a transport bound to an address.
func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	ready := opts.Ready
	if ready == nil {
		ready = func() bool { return false }
	}
	return &HTTPTransport{
		addr:           addr,
		limiter:        opts.Limiter,
		sink:           opts.Sink,
		prom:           opts.Prom,
		mem:            opts.Mem,
		appReady:       ready,
		inflight:       opts.InFlight,
		logger:         opts.Logger,
		enableAuth:     opts.EnableAuth,
		adminToken:     opts.AdminToken,
		maxBodyBytes:   opts.MaxBodyBytes,
		requestTimeout: opts.RequestTimeout,
		readTimeout:    opts.ReadTimeout,
		writeTimeout:   opts.WriteTimeout,
		idleTimeout:    opts.IdleTimeout,
	}
}

// Start begins serving HTTP requests.
func (t *HTTPTransport) Start() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	handler, err := t.handler()
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.srv == nil {
		t.srv = &http.Server{
			Addr:         t.addr,
			Handler:      handler,
			ReadTimeout:  t.readTimeout,
			WriteTimeout: t.writeTimeout,
			IdleTimeout:  t.idleTimeout,
		}
	}
	srv := t.srv
	t.mu.Unlock()

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (t *HTTPTransport) Handler() (http.Handler, error) {
	return t.handler()
}

func (t *HTTPTransport) handler() (http.Handler, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mux != nil {
		return t.mux, nil
	}
	if t.limiter == nil {
		return nil, errors.New("limiter must be set before starting")
	}
	mux := http.NewServeMux()
	t.registerRoutes(mux)
	t.mux = t.withDrain(mux)
	return t.mux, nil
}

// withDrain tracks in flight requests so shutdown can wait for them,
// and rejects new work once draining has begun.
func (t *HTTPTransport) withDrain(next http.Handler) http.Handler {
	if t.inflight == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.inflight.Begin() {
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		defer t.inflight.End()
		next.ServeHTTP(w, r)
	})
}
