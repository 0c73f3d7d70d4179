// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     discovery
// Description: Provider announcement registry with heartbeat expiry
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msto63/wiener/pkg/core/logging"
)

var discoveryLogger = logging.New("discovery")

// ErrNotFound is returned for unknown provider ids
var ErrNotFound = errors.New("provider not found")

// ProviderStatus represents the announced state of a provider
type ProviderStatus string

const (
	StatusHealthy   ProviderStatus = "healthy"
	StatusUnhealthy ProviderStatus = "unhealthy"
	StatusStarting  ProviderStatus = "starting"
	StatusStopping  ProviderStatus = "stopping"
	StatusUnknown   ProviderStatus = "unknown"
)

// ProviderInfo is one announced provider
type ProviderInfo struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Name          string            `json:"name,omitempty"`
	Address       string            `json:"address"`
	Port          int               `json:"port"`
	Operations    []string          `json:"operations,omitempty"`
	Status        ProviderStatus    `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	RegisteredAt  time.Time         `json:"registered_at"`
}

// Endpoint returns host:port of the provider
func (p *ProviderInfo) Endpoint() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// EventType distinguishes provider events
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
)

func (e EventType) String() string {
	if e == EventConnected {
		return "connected"
	}
	return "disconnected"
}

// Event reports a provider connecting or going away
type Event struct {
	Type     EventType
	Provider ProviderInfo
}

// Client is the provider announcement interface used by providers
type Client interface {
	Register(ctx context.Context, info *ProviderInfo) error
	Deregister(ctx context.Context, id string) error
	Heartbeat(ctx context.Context, id string) error
	Close() error
}

// Registry is the in-memory announcement registry of the control process.
// Listeners are called synchronously outside the registry lock.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderInfo
	listeners []func(Event)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*ProviderInfo),
	}
}

// OnEvent adds a listener for connect and disconnect events
func (r *Registry) OnEvent(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) emit(ev Event) {
	r.mu.RLock()
	listeners := make([]func(Event), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Register announces a provider. A missing id is generated.
func (r *Registry) Register(ctx context.Context, info *ProviderInfo) error {
	if info.Type == "" {
		return fmt.Errorf("provider type is required")
	}
	if info.Address == "" {
		info.Address = "localhost"
	}
	now := time.Now()

	r.mu.Lock()
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	info.RegisteredAt = now
	info.LastHeartbeat = now
	if info.Status == "" {
		info.Status = StatusHealthy
	}
	stored := *info
	r.providers[info.ID] = &stored
	r.mu.Unlock()

	discoveryLogger.Info("Provider announced",
		"id", info.ID,
		"type", info.Type,
		"name", info.Name,
		"endpoint", info.Endpoint(),
	)
	r.emit(Event{Type: EventConnected, Provider: stored})
	return nil
}

// Deregister removes a provider
func (r *Registry) Deregister(ctx context.Context, id string) error {
	r.mu.Lock()
	info, ok := r.providers[id]
	delete(r.providers, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	discoveryLogger.Info("Provider deregistered", "id", id, "type", info.Type)
	r.emit(Event{Type: EventDisconnected, Provider: *info})
	return nil
}

// Heartbeat refreshes a provider's liveness
func (r *Registry) Heartbeat(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.providers[id]; ok {
		info.LastHeartbeat = time.Now()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Discover returns the healthy providers of a type
func (r *Registry) Discover(ctx context.Context, typ string) ([]ProviderInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []ProviderInfo
	for _, info := range r.providers {
		if info.Type == typ && info.Status == StatusHealthy {
			results = append(results, *info)
		}
	}
	sortInfos(results)
	return results, nil
}

// Get returns a provider by id
func (r *Registry) Get(ctx context.Context, id string) (ProviderInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.providers[id]; ok {
		return *info, nil
	}
	return ProviderInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns all providers ordered by registration time
func (r *Registry) List(ctx context.Context) ([]ProviderInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]ProviderInfo, 0, len(r.providers))
	for _, info := range r.providers {
		results = append(results, *info)
	}
	sortInfos(results)
	return results, nil
}

// Expire removes providers whose last heartbeat is older than ttl and
// returns their ids
func (r *Registry) Expire(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var expired []*ProviderInfo
	for id, info := range r.providers {
		if info.LastHeartbeat.Before(cutoff) {
			expired = append(expired, info)
			delete(r.providers, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, info := range expired {
		discoveryLogger.Warn("Provider heartbeat expired", "id", info.ID, "type", info.Type)
		info.Status = StatusUnhealthy
		r.emit(Event{Type: EventDisconnected, Provider: *info})
		ids = append(ids, info.ID)
	}
	sort.Strings(ids)
	return ids
}

// RunExpiry calls Expire every interval until ctx ends
func (r *Registry) RunExpiry(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Expire(ttl)
		}
	}
}

// Close is a no-op for the in-memory registry
func (r *Registry) Close() error {
	return nil
}

func sortInfos(infos []ProviderInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].RegisteredAt.Equal(infos[j].RegisteredAt) {
			return infos[i].RegisteredAt.Before(infos[j].RegisteredAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
