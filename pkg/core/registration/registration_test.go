package registration

import (
	"context"
	"testing"
	"time"

	"github.com/msto63/wiener/pkg/core/discovery"
)

func TestNew_WithDefaults(t *testing.T) {
	reg := New(discovery.NewRegistry(), Config{Type: "speech", Port: 9300})

	if reg.info.Address != "localhost" {
		t.Errorf("address = %q, want localhost", reg.info.Address)
	}
	if reg.interval != DefaultHeartbeat {
		t.Errorf("interval = %v, want %v", reg.interval, DefaultHeartbeat)
	}
	if reg.ProviderID() != "" {
		t.Errorf("ProviderID() = %q before Register", reg.ProviderID())
	}
}

func TestRegisterAndDeregister(t *testing.T) {
	registry := discovery.NewRegistry()
	ctx := context.Background()

	reg := New(registry, Config{Type: "speech", Name: "tts", Port: 9300, Operations: []string{"say"}})
	if err := reg.Register(ctx); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	id := reg.ProviderID()
	if id == "" {
		t.Fatal("ProviderID() empty after Register")
	}

	info, err := registry.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Type != "speech" || info.Name != "tts" || info.Endpoint() != "localhost:9300" {
		t.Errorf("registered info = %+v", info)
	}

	if err := reg.Deregister(ctx); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	if _, err := registry.Get(ctx, id); err == nil {
		t.Error("provider still registered after Deregister")
	}
	if err := reg.Deregister(ctx); err != nil {
		t.Errorf("second Deregister() error = %v", err)
	}
}

func TestHeartbeatReannouncesAfterExpiry(t *testing.T) {
	registry := discovery.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := New(registry, Config{Type: "motion", Port: 9400, Heartbeat: 10 * time.Millisecond})
	if err := reg.Register(ctx); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	id := reg.ProviderID()

	// the control process forgets the provider
	if err := registry.Deregister(ctx, id); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}

	reg.StartHeartbeat(ctx)
	defer reg.StopHeartbeat()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := registry.Get(ctx, id); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("provider was not announced again")
}

func TestStopHeartbeatWithoutStart(t *testing.T) {
	reg := New(discovery.NewRegistry(), Config{Type: "misc"})
	reg.StopHeartbeat()
}
