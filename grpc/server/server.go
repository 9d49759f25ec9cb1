// Package server runs the HTTP and gRPC listeners of an audited service and shuts them
// down gracefully.
package server

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"

	"github.com/rainbow-me/api-audit/common/logger"
)

var (
	ErrNoServers       = errors.New("no servers configured")
	ErrShutdownTimeout = errors.New("shutdown timed out")
	ErrInvalidConfig   = errors.New("invalid server config")
)

// Option configures a Server.
type Option func(*Server) error

// WithHTTPServer serves handler on address.
func WithHTTPServer(name, address string, handler http.Handler, opts ...HTTPConfigOption) Option {
	return func(s *Server) error {
		if handler == nil {
			return errors.Wrapf(ErrInvalidConfig, "http server %q has no handler", name)
		}
		if err := s.claim(name, address); err != nil {
			return err
		}
		s.httpConfigs = append(s.httpConfigs, newHTTPConfig(name, address, handler, opts))
		return nil
	}
}

// WithGRPCServer serves srv on address after setup registered its services. A nil srv
// is replaced by NewGRPCServer(nil, false).
func WithGRPCServer(name, address string, srv *grpc.Server, setup func(*grpc.Server)) Option {
	return func(s *Server) error {
		if setup == nil {
			return errors.Wrapf(ErrInvalidConfig, "grpc server %q has no setup func", name)
		}
		if err := s.claim(name, address); err != nil {
			return err
		}
		s.grpcConfigs = append(s.grpcConfigs, GRPCConfig{Name: name, Address: address, GRPCServer: srv, SetupFunc: setup})
		return nil
	}
}

// WithShutdownHook runs hook during graceful shutdown.
func WithShutdownHook(hook ShutdownHook) Option {
	return func(s *Server) error {
		if hook.Hook == nil {
			return errors.Wrapf(ErrInvalidConfig, "shutdown hook %q has no function", hook.Name)
		}
		s.hooks = s.hooks.add(hook)
		return nil
	}
}

// WithShutdownTimeout bounds the whole graceful shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		s.shutdownTimeout = timeout
		return nil
	}
}

// WithSignalHandling shuts the server down gracefully on SIGINT and SIGTERM.
func WithSignalHandling(enabled bool) Option {
	return func(s *Server) error {
		s.signalHandling = enabled
		return nil
	}
}

// WithLogger sets the logger. Default is logger.Instance().
func WithLogger(log *logger.Logger) Option {
	return func(s *Server) error {
		s.log = log
		return nil
	}
}

// Server owns a set of HTTP and gRPC listeners.
type Server struct {
	log             *logger.Logger
	httpConfigs     []HTTPConfig
	grpcConfigs     []GRPCConfig
	hooks           ShutdownHooks
	shutdownTimeout time.Duration
	signalHandling  bool

	names     map[string]bool
	addresses map[string]bool

	mu          sync.Mutex
	httpServers []*http.Server
	grpcServers []*grpc.Server
	stopped     chan struct{}
	stopOnce    sync.Once
}

// NewServer validates opts. Names must be unique, and so must addresses unless they pick
// a random port.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		shutdownTimeout: DefaultShutdownTimeout,
		signalHandling:  true,
		names:           make(map[string]bool),
		addresses:       make(map[string]bool),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.log == nil {
		s.log = logger.Instance()
	}
	return s, nil
}

func (s *Server) claim(name, address string) error {
	if s.names[name] {
		return errors.Wrapf(ErrInvalidConfig, "duplicate server name %q", name)
	}
	if _, port, err := net.SplitHostPort(address); err == nil && port != "0" && s.addresses[address] {
		return errors.Wrapf(ErrInvalidConfig, "duplicate server address %q", address)
	}
	s.names[name] = true
	s.addresses[address] = true
	return nil
}

// Serve blocks until a listener fails, Stop or GracefulShutdown is called, or a signal
// arrives. Listener failures are returned after the other servers are stopped.
func (s *Server) Serve() error {
	if len(s.httpConfigs)+len(s.grpcConfigs) == 0 {
		return ErrNoServers
	}

	errCh := make(chan error, len(s.httpConfigs)+len(s.grpcConfigs))
	if err := s.start(errCh); err != nil {
		_ = s.Stop()
		return err
	}

	var signals <-chan struct{}
	if s.signalHandling {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		signals = ctx.Done()
	}

	select {
	case err := <-errCh:
		s.log.Error("server failed, stopping", logger.Error(err))
		_ = s.Stop()
		return err
	case <-signals:
		s.log.Info("shutdown signal received")
		return s.GracefulShutdown(context.Background())
	case <-s.stopped:
		return nil
	}
}

func (s *Server) start(errCh chan<- error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cfg := range s.httpConfigs {
		lis, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return errors.Wrapf(err, "failed to listen for %s", cfg.Name)
		}
		srv := &http.Server{
			Handler:           cfg.Handler,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.HeaderTimeout,
		}
		s.httpServers = append(s.httpServers, srv)
		s.log.Info("http server listening", logger.String("name", cfg.Name), logger.String("address", lis.Addr().String()))
		go func() {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- errors.Wrapf(err, "http server %s", cfg.Name)
			}
		}()
	}

	for _, cfg := range s.grpcConfigs {
		lis, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return errors.Wrapf(err, "failed to listen for %s", cfg.Name)
		}
		srv := cfg.GRPCServer
		if srv == nil {
			srv = NewGRPCServer(nil, false)
		}
		cfg.SetupFunc(srv)
		s.grpcServers = append(s.grpcServers, srv)
		s.log.Info("grpc server listening", logger.String("name", cfg.Name), logger.String("address", lis.Addr().String()))
		go func() {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- errors.Wrapf(err, "grpc server %s", cfg.Name)
			}
		}()
	}
	return nil
}

// Stop closes every listener and connection immediately. Shutdown hooks are not run.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, srv := range s.httpServers {
		err = errors.CombineErrors(err, srv.Close())
	}
	for _, srv := range s.grpcServers {
		srv.Stop()
	}
	s.markStopped()
	return err
}

// GracefulShutdown drains the servers, then runs the shutdown hooks by priority. It
// returns ErrShutdownTimeout when the shutdown timeout elapses first.
func (s *Server) GracefulShutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.mu.Lock()
	var err error
	for _, srv := range s.httpServers {
		err = errors.CombineErrors(err, srv.Shutdown(ctx))
	}
	for _, srv := range s.grpcServers {
		gracefulStop(ctx, srv)
	}
	s.mu.Unlock()

	err = errors.CombineErrors(err, s.ExecuteShutdownHooks(ctx))
	s.markStopped()
	if ctx.Err() != nil && !errors.Is(err, ErrShutdownTimeout) {
		err = errors.CombineErrors(err, ErrShutdownTimeout)
	}
	return err
}

func gracefulStop(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
	}
}

// ExecuteShutdownHooks runs the hooks in priority order, each bounded by its own timeout.
// Remaining hooks are skipped once ctx is done.
func (s *Server) ExecuteShutdownHooks(ctx context.Context) error {
	var err error
	for _, hook := range s.hooks {
		if ctx.Err() != nil {
			return errors.CombineErrors(err, errors.Wrapf(ErrShutdownTimeout, "skipped hook %s", hook.Name))
		}
		if herr := s.runHook(ctx, hook); herr != nil {
			s.log.Error("shutdown hook failed", logger.String("hook", hook.Name), logger.Error(herr))
			err = errors.CombineErrors(err, herr)
		}
	}
	return err
}

func (s *Server) runHook(ctx context.Context, hook ShutdownHook) error {
	hctx, cancel := context.WithTimeout(ctx, hook.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hook.Hook(hctx) }()

	select {
	case err := <-done:
		return errors.Wrapf(err, "hook %s", hook.Name)
	case <-hctx.Done():
		if ctx.Err() != nil {
			return errors.Wrapf(ErrShutdownTimeout, "hook %s", hook.Name)
		}
		return errors.Errorf("hook %s timed out after %s", hook.Name, hook.Timeout)
	}
}

func (s *Server) markStopped() {
	s.stopOnce.Do(func() { close(s.stopped) })
}
