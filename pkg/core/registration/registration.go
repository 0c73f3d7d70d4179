// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     registration
// Description: Provider announcement and heartbeat towards the control process
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msto63/wiener/pkg/core/discovery"
	"github.com/msto63/wiener/pkg/core/logging"
)

// DefaultHeartbeat is the interval between heartbeats
const DefaultHeartbeat = 10 * time.Second

// Config holds registration configuration
type Config struct {
	Type       string
	Name       string
	Address    string
	Port       int
	Operations []string
	Metadata   map[string]string
	Heartbeat  time.Duration
}

// ProviderRegistration announces one provider and keeps it alive
type ProviderRegistration struct {
	client     discovery.Client
	info       discovery.ProviderInfo
	interval   time.Duration
	logger     *logging.Logger
	mu         sync.Mutex
	providerID string
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New creates a registration using client
func New(client discovery.Client, cfg Config) *ProviderRegistration {
	if cfg.Address == "" {
		cfg.Address = "localhost"
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &ProviderRegistration{
		client: client,
		info: discovery.ProviderInfo{
			Type:       cfg.Type,
			Name:       cfg.Name,
			Address:    cfg.Address,
			Port:       cfg.Port,
			Operations: cfg.Operations,
			Metadata:   cfg.Metadata,
		},
		interval: cfg.Heartbeat,
		logger:   logging.New("registration"),
	}
}

// Register announces the provider
func (pr *ProviderRegistration) Register(ctx context.Context) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	info := pr.info
	info.ID = pr.providerID
	if err := pr.client.Register(ctx, &info); err != nil {
		return fmt.Errorf("failed to announce provider: %w", err)
	}
	pr.providerID = info.ID
	pr.logger.Info("Provider announced",
		"type", info.Type,
		"name", info.Name,
		"id", info.ID,
	)
	return nil
}

// ProviderID returns the id assigned at registration
func (pr *ProviderRegistration) ProviderID() string {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.providerID
}

// Deregister withdraws the announcement
func (pr *ProviderRegistration) Deregister(ctx context.Context) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.providerID == "" {
		return nil
	}
	if err := pr.client.Deregister(ctx, pr.providerID); err != nil {
		return fmt.Errorf("failed to deregister: %w", err)
	}
	pr.logger.Info("Provider deregistered", "id", pr.providerID)
	pr.providerID = ""
	return nil
}

// StartHeartbeat sends heartbeats until ctx ends or StopHeartbeat
func (pr *ProviderRegistration) StartHeartbeat(ctx context.Context) {
	pr.mu.Lock()
	pr.stopCh = make(chan struct{})
	pr.doneCh = make(chan struct{})
	stopCh, doneCh := pr.stopCh, pr.doneCh
	pr.mu.Unlock()

	go pr.heartbeatLoop(ctx, stopCh, doneCh)
}

// StopHeartbeat stops the heartbeat goroutine and waits for it
func (pr *ProviderRegistration) StopHeartbeat() {
	pr.mu.Lock()
	stopCh, doneCh := pr.stopCh, pr.doneCh
	pr.stopCh, pr.doneCh = nil, nil
	pr.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (pr *ProviderRegistration) heartbeatLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			pr.sendHeartbeat(ctx)
		}
	}
}

// sendHeartbeat re-announces the provider when the control process no
// longer knows it
func (pr *ProviderRegistration) sendHeartbeat(ctx context.Context) {
	id := pr.ProviderID()
	if id == "" {
		return
	}

	hbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := pr.client.Heartbeat(hbCtx, id)
	switch {
	case err == nil:
	case errors.Is(err, discovery.ErrNotFound):
		pr.logger.Warn("Heartbeat not acknowledged, announcing again", "id", id)
		if err := pr.Register(hbCtx); err != nil {
			pr.logger.Warn("Re-announcement failed", "error", err)
		}
	default:
		pr.logger.Warn("Heartbeat failed", "id", id, "error", err)
	}
}

// Announce registers once and starts the heartbeat
func Announce(ctx context.Context, client discovery.Client, cfg Config) (*ProviderRegistration, error) {
	reg := New(client, cfg)
	if err := reg.Register(ctx); err != nil {
		return nil, err
	}
	reg.StartHeartbeat(ctx)
	return reg, nil
}
