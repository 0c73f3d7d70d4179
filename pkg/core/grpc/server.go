package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/msto63/wiener/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

var serverLogger = logging.New("grpc-server")

// ServerConfig configures a provider's gRPC endpoint
type ServerConfig struct {
	Host string
	Port int

	// MaxMessageSize bounds both directions; operation arguments are small
	// but state batches may not be
	MaxMessageSize int

	// CallTimeout caps calls that arrive without a deadline. Zero disables it.
	CallTimeout time.Duration

	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration

	// Interceptors run after the built-in recovery, request id, deadline
	// and logging interceptors
	Interceptors []grpc.UnaryServerInterceptor
}

// DefaultServerConfig returns the provider server defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "0.0.0.0",
		Port:              9300,
		MaxMessageSize:    4 << 20,
		CallTimeout:       time.Minute,
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// Server is the gRPC endpoint a provider serves its operations on
type Server struct {
	grpc *grpc.Server
	cfg  ServerConfig

	mu  sync.Mutex
	lis net.Listener
}

// NewServer creates a server with the interceptor chain installed
func NewServer(cfg ServerConfig, opts ...grpc.ServerOption) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultServerConfig().MaxMessageSize
	}
	chain := append([]grpc.UnaryServerInterceptor{
		RecoveryInterceptor(),
		RequestIDInterceptor(),
		DeadlineInterceptor(cfg.CallTimeout),
		LoggingInterceptor(),
	}, cfg.Interceptors...)

	base := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.MaxMessageSize),
		grpc.MaxSendMsgSize(cfg.MaxMessageSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveInterval,
			Timeout: cfg.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(chain...),
	}
	return &Server{
		grpc: grpc.NewServer(append(base, opts...)...),
		cfg:  cfg,
	}
}

// GRPCServer returns the underlying server for service registration
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	return s.grpc.Serve(lis)
}

// StartAsync listens on the configured address and serves in the background.
// Port 0 picks a free port; Port reports it afterwards.
func (s *Server) StartAsync() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			serverLogger.Error("Provider endpoint stopped", "address", addr, "error", err)
		}
	}()
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	return nil
}

// Stop drains in-flight calls, cutting them off when ctx ends first
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		serverLogger.Warn("Forcing provider endpoint shutdown")
		s.grpc.Stop()
	}
}

// Address returns the bound address, or the configured one before start
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Port returns the bound TCP port, or the configured one before start
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		if tcp, ok := s.lis.Addr().(*net.TCPAddr); ok {
			return tcp.Port
		}
	}
	return s.cfg.Port
}
