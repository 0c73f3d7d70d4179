package provider

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	coreGrpc "github.com/msto63/wiener/pkg/core/grpc"
)

// Connector opens an invoker to an announced endpoint and confirms what the
// provider offers
type Connector interface {
	Connect(ctx context.Context, endpoint string) (Invoker, Description, error)
}

// GRPCConnector connects over pooled gRPC connections
type GRPCConnector struct {
	pool *coreGrpc.ConnectionPool
}

// NewGRPCConnector creates a connector. Extra dial options apply to every
// connection.
func NewGRPCConnector(opts ...grpc.DialOption) *GRPCConnector {
	return &GRPCConnector{
		pool: coreGrpc.NewConnectionPool(coreGrpc.DefaultClientConfig(), opts...),
	}
}

// Connect dials endpoint and asks the provider for its description
func (c *GRPCConnector) Connect(ctx context.Context, endpoint string) (Invoker, Description, error) {
	conn, err := c.pool.Get(endpoint)
	if err != nil {
		return nil, Description{}, err
	}
	inv := &pooledInvoker{GRPCInvoker: NewGRPCInvoker(conn), pool: c.pool, target: endpoint}
	desc, err := inv.Describe(ctx)
	if err != nil {
		_ = inv.Close()
		return nil, Description{}, fmt.Errorf("describe %s: %w", endpoint, err)
	}
	return inv, desc, nil
}

// Status returns the connection state per endpoint
func (c *GRPCConnector) Status() map[string]string {
	return c.pool.Status()
}

// Close closes all pooled connections
func (c *GRPCConnector) Close() error {
	return c.pool.Close()
}

// pooledInvoker returns its connection to the pool on Close
type pooledInvoker struct {
	*GRPCInvoker
	pool   *coreGrpc.ConnectionPool
	target string
}

func (p *pooledInvoker) Close() error {
	return p.pool.Release(p.target)
}
