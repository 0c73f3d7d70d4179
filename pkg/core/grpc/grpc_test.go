package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/wiener.provider.v1.Provider/Invoke"}

func TestRecoveryInterceptor(t *testing.T) {
	_, err := RecoveryInterceptor()(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		panic("gripper jammed")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestRequestIDInterceptor(t *testing.T) {
	capture := func(ctx context.Context, req any) (any, error) { return RequestID(ctx), nil }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, "req-7"))
	got, _ := RequestIDInterceptor()(ctx, nil, testInfo, capture)
	if got != "req-7" {
		t.Errorf("propagated id = %v, want req-7", got)
	}

	got, _ = RequestIDInterceptor()(context.Background(), nil, testInfo, capture)
	if id, _ := got.(string); len(id) != 36 {
		t.Errorf("minted id = %q, want a uuid", id)
	}
}

func TestDeadlineInterceptor(t *testing.T) {
	hasDeadline := func(ctx context.Context, req any) (any, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	}
	got, _ := DeadlineInterceptor(time.Second)(context.Background(), nil, testInfo, hasDeadline)
	if got != true {
		t.Error("call without deadline was not bounded")
	}
	got, _ = DeadlineInterceptor(0)(context.Background(), nil, testInfo, hasDeadline)
	if got != false {
		t.Error("zero limit bounded the call")
	}

	_, err := DeadlineInterceptor(10*time.Millisecond)(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		<-ctx.Done()
		return nil, errors.New("motor did not settle")
	})
	if status.Code(err) != codes.DeadlineExceeded {
		t.Errorf("code = %v, want DeadlineExceeded", status.Code(err))
	}
}

func TestServerAndPool(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(DefaultServerConfig())
	healthpb.RegisterHealthServer(srv.GRPCServer(), health.NewServer())
	go srv.Serve(lis)
	defer srv.Stop(context.Background())

	pool := NewConnectionPool(DefaultClientConfig(), grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	defer pool.Close()

	const target = "passthrough:///bufnet"
	conn, err := pool.Get(target)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.GetStatus())
	}

	again, _ := pool.Get(target)
	if again != conn {
		t.Error("pool dialed a second connection for the same target")
	}
	if targets := pool.Targets(); len(targets) != 1 || targets[0] != target {
		t.Errorf("Targets() = %v", targets)
	}
	if err := pool.Release(target); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if len(pool.Status()) != 0 {
		t.Errorf("Status() after release = %v", pool.Status())
	}
}

func TestServerAddress(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 0
	srv := NewServer(cfg)
	if srv.Address() != "127.0.0.1:0" {
		t.Errorf("Address() before start = %q", srv.Address())
	}
	if err := srv.StartAsync(); err != nil {
		t.Fatalf("StartAsync() error = %v", err)
	}
	defer srv.Stop(context.Background())
	if srv.Port() == 0 {
		t.Error("Port() did not report the bound port")
	}
}
