// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     grpc
// Description: Provider endpoints, client connections and call interceptors
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package grpc holds the transport shared by providers and the orchestrator:
// a server wrapper for provider endpoints, a connection pool the orchestrator
// dials providers through, and interceptors for recovery, request ids,
// deadlines and logging.
package grpc

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ClientConfig configures connections to provider endpoints
type ClientConfig struct {
	MaxMessageSize    int
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// DefaultClientConfig mirrors DefaultServerConfig
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxMessageSize:    4 << 20,
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// Dial creates a client connection to target. The connection is established
// lazily on the first call, so Dial does not fail for an unreachable target.
func Dial(target string, cfg ClientConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultClientConfig().MaxMessageSize
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
			grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(
			ClientRequestIDInterceptor(),
			ClientLoggingInterceptor(),
		),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

// ConnectionPool keeps one connection per provider endpoint
type ConnectionPool struct {
	cfg  ClientConfig
	opts []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewConnectionPool creates an empty pool
func NewConnectionPool(cfg ClientConfig, opts ...grpc.DialOption) *ConnectionPool {
	return &ConnectionPool{
		cfg:   cfg,
		opts:  opts,
		conns: make(map[string]*grpc.ClientConn),
	}
}

// Get returns the connection to target, redialing when the pooled one has
// failed or been shut down
func (p *ConnectionPool) Get(target string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[target]; ok {
		if usable(conn) {
			return conn, nil
		}
		_ = conn.Close()
		delete(p.conns, target)
	}
	conn, err := Dial(target, p.cfg, p.opts...)
	if err != nil {
		return nil, err
	}
	p.conns[target] = conn
	return conn, nil
}

// Release closes and forgets the connection to target
func (p *ConnectionPool) Release(target string) error {
	p.mu.Lock()
	conn, ok := p.conns[target]
	delete(p.conns, target)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

func usable(conn *grpc.ClientConn) bool {
	s := conn.GetState()
	return s != connectivity.TransientFailure && s != connectivity.Shutdown
}

// Targets lists the pooled endpoints in order
func (p *ConnectionPool) Targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.conns))
	for t := range p.conns {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Status returns the connectivity state per endpoint
func (p *ConnectionPool) Status() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.conns))
	for t, conn := range p.conns {
		out[t] = conn.GetState().String()
	}
	return out
}

// Close closes every pooled connection, returning the first error
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for t, conn := range p.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", t, err)
		}
		delete(p.conns, t)
	}
	return first
}
