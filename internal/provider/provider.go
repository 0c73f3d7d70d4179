// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     provider
// Description: Priority-ordered binding of operations to remote providers
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package provider maps operation names to the remote service instances that
// currently offer them.
//
// Wanted provider types are declared up front with a priority rank. When a
// provider of a wanted type connects, each of its operations is indexed into a
// per-operation priority queue. Resolve returns the queue head while it is
// live. Operations that could not be resolved are remembered so that a later
// connection can be reported as newly resolving them.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/script"
)

// Errors returned by invokers. They are the engine's sentinels so that
// failure causes are derived without translation.
var (
	ErrReferenceUnavailable = engine.ErrReferenceUnavailable
	ErrTimeout              = engine.ErrTimeout
	ErrRemote               = engine.ErrRemote
)

// Invoker performs remote operations on one provider
type Invoker interface {
	Invoke(ctx context.Context, operation string, args []script.Term) (script.Term, error)
	Close() error
}

// Description is what a provider reports about itself
type Description struct {
	Type       string   `json:"type"`
	Name       string   `json:"name,omitempty"`
	Operations []string `json:"operations"`
}

// Want declares a needed provider type, optionally restricted to one named
// instance. Lower priority values are preferred.
type Want struct {
	Type     string `json:"type" toml:"type"`
	Name     string `json:"name,omitempty" toml:"name"`
	Priority int    `json:"priority" toml:"priority"`
}

// ParseWant reads "type[/name]:priority". A missing priority means 0.
func ParseWant(s string) (Want, error) {
	var w Want
	raw := strings.TrimSpace(s)
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		var prio int
		if _, err := fmt.Sscanf(raw[i+1:], "%d", &prio); err != nil {
			return w, fmt.Errorf("invalid priority in %q: %w", s, err)
		}
		w.Priority = prio
		raw = raw[:i]
	}
	if i := strings.Index(raw, "/"); i >= 0 {
		w.Name = raw[i+1:]
		raw = raw[:i]
	}
	w.Type = raw
	if w.Type == "" {
		return w, fmt.Errorf("missing provider type in %q", s)
	}
	return w, nil
}

func (w Want) String() string {
	s := w.Type
	if w.Name != "" {
		s += "/" + w.Name
	}
	return fmt.Sprintf("%s:%d", s, w.Priority)
}

// matches reports whether a provider of typ/name satisfies the want
func (w Want) matches(typ, name string) bool {
	return w.Type == typ && (w.Name == "" || w.Name == name)
}

// Provider is one connected service instance
type Provider struct {
	ID         string
	Type       string
	Name       string
	Endpoint   string
	Priority   int
	Operations []string
	Invoker    Invoker

	live        bool
	seq         uint64
	connectedAt time.Time
}

func (p *Provider) label() string {
	if p.Name != "" {
		return p.Type + "/" + p.Name
	}
	return p.Type
}

// State is the exported view of a provider
type State struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Priority    int       `json:"priority"`
	Live        bool      `json:"live"`
	Operations  []string  `json:"operations"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (p *Provider) state() State {
	ops := make([]string, len(p.Operations))
	copy(ops, p.Operations)
	return State{
		ID:          p.ID,
		Type:        p.Type,
		Name:        p.Name,
		Endpoint:    p.Endpoint,
		Priority:    p.Priority,
		Live:        p.live,
		Operations:  ops,
		ConnectedAt: p.connectedAt,
	}
}
