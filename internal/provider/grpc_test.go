package provider

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/msto63/wiener/internal/script"
	coreGrpc "github.com/msto63/wiener/pkg/core/grpc"
)

func startProvider(t *testing.T, ops *Operations) (*GRPCConnector, string) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := coreGrpc.NewServer(coreGrpc.DefaultServerConfig())
	RegisterProviderServer(srv.GRPCServer(), NewService("speech", "tts-1", ops))
	go srv.Serve(lis)
	t.Cleanup(func() { srv.GRPCServer().Stop() })

	conn := NewGRPCConnector(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	t.Cleanup(func() { conn.Close() })
	return conn, "passthrough:///bufnet"
}

func TestGRPCDescribeAndInvoke(t *testing.T) {
	ops := EchoOperations().Handle("fail", func(ctx context.Context, args []script.Term) (script.Term, error) {
		return script.Term{}, errors.New("speaker muted")
	})
	connector, endpoint := startProvider(t, ops)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inv, desc, err := connector.Connect(ctx, endpoint)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if desc.Type != "speech" || desc.Name != "tts-1" {
		t.Errorf("Describe() = %+v", desc)
	}
	if want := []string{"echo", "fail", "move", "say"}; !reflect.DeepEqual(desc.Operations, want) {
		t.Errorf("Operations = %v, want %v", desc.Operations, want)
	}

	arg := script.MustParseTerm(`at(kitchen, 3)`)
	val, err := inv.Invoke(ctx, "echo", []script.Term{arg})
	if err != nil {
		t.Fatalf("Invoke(echo) error = %v", err)
	}
	if !val.Equal(arg) {
		t.Errorf("Invoke(echo) = %s, want %s", val, arg)
	}

	if val, err := inv.Invoke(ctx, "say", []script.Term{script.String("hi")}); err != nil || val.String() != "done" {
		t.Errorf("Invoke(say) = %s, %v", val, err)
	}
	if _, err := inv.Invoke(ctx, "fly", nil); !errors.Is(err, ErrReferenceUnavailable) {
		t.Errorf("Invoke(fly) error = %v, want ErrReferenceUnavailable", err)
	}
	if _, err := inv.Invoke(ctx, "fail", nil); !errors.Is(err, ErrRemote) {
		t.Errorf("Invoke(fail) error = %v, want ErrRemote", err)
	}
}

func TestGRPCTimeout(t *testing.T) {
	ops := NewOperations().Handle("wait", func(ctx context.Context, args []script.Term) (script.Term, error) {
		select {
		case <-ctx.Done():
			return script.Term{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return script.Atom("late"), nil
		}
	})
	connector, endpoint := startProvider(t, ops)

	inv, desc, err := connector.Connect(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tbl := NewTable(0)
	tbl.Add(&Provider{ID: "p", Type: desc.Type, Name: desc.Name, Operations: desc.Operations, Invoker: inv})

	_, err = tbl.InvokeTimeout(context.Background(), "wait", 50*time.Millisecond, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("InvokeTimeout() error = %v, want ErrTimeout", err)
	}
}
