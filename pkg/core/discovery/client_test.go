package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestProviderInfo_Endpoint(t *testing.T) {
	info := &ProviderInfo{Address: "robot.local", Port: 9300}
	if info.Endpoint() != "robot.local:9300" {
		t.Errorf("Endpoint() = %v, want robot.local:9300", info.Endpoint())
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func TestRegistry_RegisterEmitsConnect(t *testing.T) {
	registry := NewRegistry()
	log := &eventLog{}
	registry.OnEvent(log.add)
	ctx := context.Background()

	info := &ProviderInfo{Type: "vision", Port: 9301, Operations: []string{"look"}}
	if err := registry.Register(ctx, info); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if info.ID == "" {
		t.Error("ID should be generated")
	}
	if info.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", info.Status)
	}
	if info.Address != "localhost" {
		t.Errorf("Address = %q, want localhost", info.Address)
	}

	got := log.types()
	if len(got) != 1 || got[0] != EventConnected {
		t.Errorf("events = %v, want [connected]", got)
	}
}

func TestRegistry_RegisterRequiresType(t *testing.T) {
	if err := NewRegistry().Register(context.Background(), &ProviderInfo{Port: 1}); err == nil {
		t.Error("Register() without type should fail")
	}
}

func TestRegistry_DeregisterEmitsDisconnect(t *testing.T) {
	registry := NewRegistry()
	log := &eventLog{}
	registry.OnEvent(log.add)
	ctx := context.Background()

	info := &ProviderInfo{ID: "p1", Type: "speech", Port: 9302}
	registry.Register(ctx, info)
	if err := registry.Deregister(ctx, "p1"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	if err := registry.Deregister(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Deregister() error = %v, want ErrNotFound", err)
	}

	got := log.types()
	if len(got) != 2 || got[1] != EventDisconnected {
		t.Errorf("events = %v, want [connected disconnected]", got)
	}
}

func TestRegistry_HeartbeatAndExpire(t *testing.T) {
	registry := NewRegistry()
	log := &eventLog{}
	registry.OnEvent(log.add)
	ctx := context.Background()

	registry.Register(ctx, &ProviderInfo{ID: "old", Type: "motion"})
	registry.Register(ctx, &ProviderInfo{ID: "fresh", Type: "motion"})

	time.Sleep(30 * time.Millisecond)
	if err := registry.Heartbeat(ctx, "fresh"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if err := registry.Heartbeat(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Heartbeat(missing) error = %v, want ErrNotFound", err)
	}

	expired := registry.Expire(20 * time.Millisecond)
	if len(expired) != 1 || expired[0] != "old" {
		t.Fatalf("Expire() = %v, want [old]", expired)
	}
	list, _ := registry.List(ctx)
	if len(list) != 1 || list[0].ID != "fresh" {
		t.Errorf("List() = %+v, want only fresh", list)
	}
	got := log.types()
	if got[len(got)-1] != EventDisconnected {
		t.Errorf("last event = %v, want disconnected", got[len(got)-1])
	}
}

func TestRegistry_Discover(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	registry.Register(ctx, &ProviderInfo{ID: "a", Type: "speech"})
	registry.Register(ctx, &ProviderInfo{ID: "b", Type: "speech", Status: StatusStarting})
	registry.Register(ctx, &ProviderInfo{ID: "c", Type: "vision"})

	found, err := registry.Discover(ctx, "speech")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != "a" {
		t.Errorf("Discover(speech) = %+v, want only a", found)
	}
}

func TestHTTPClient(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/providers":
			var info ProviderInfo
			if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			info.ID = "assigned"
			info.Status = StatusHealthy
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(info)
		case strings.HasSuffix(r.URL.Path, "/missing/heartbeat"):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	ctx := context.Background()

	info := &ProviderInfo{Type: "speech", Port: 9300}
	if err := client.Register(ctx, info); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if info.ID != "assigned" {
		t.Errorf("ID = %q, want assigned", info.ID)
	}
	if err := client.Heartbeat(ctx, "assigned"); err != nil {
		t.Errorf("Heartbeat() error = %v", err)
	}
	if err := client.Heartbeat(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Heartbeat(missing) error = %v, want ErrNotFound", err)
	}
	if err := client.Deregister(ctx, "assigned"); err != nil {
		t.Errorf("Deregister() error = %v", err)
	}

	want := []string{
		"POST /api/v1/providers",
		"PUT /api/v1/providers/assigned/heartbeat",
		"PUT /api/v1/providers/missing/heartbeat",
		"DELETE /api/v1/providers/assigned",
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}
