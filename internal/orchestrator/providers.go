package orchestrator

import (
	"context"
	"fmt"

	"github.com/msto63/wiener/internal/provider"
	"github.com/msto63/wiener/pkg/core/discovery"
)

// HandleProviderEvent reacts to announcements. A connecting provider is
// connected eagerly when it is wanted or offers an unresolved operation.
func (o *Orchestrator) HandleProviderEvent(ev discovery.Event) {
	info := ev.Provider
	switch ev.Type {
	case discovery.EventConnected:
		prio, wanted := o.table.Accepts(info.Type, info.Name)
		if !wanted {
			if !o.table.Satisfies(info.Operations) {
				o.logger.Debug("Ignoring unwanted provider", "id", info.ID, "type", info.Type)
				return
			}
			prio = provider.DefaultPriority
		}
		if o.connector == nil {
			o.logger.Warn("No connector for announced provider", "id", info.ID)
			return
		}
		if o.ctx.Err() != nil {
			return
		}
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.connect(info, prio); err != nil {
				o.logger.Warn("Provider connection failed", "id", info.ID, "endpoint", info.Endpoint(), "error", err)
			}
		}()
	case discovery.EventDisconnected:
		if o.table.Remove(info.ID) {
			o.publishProvider("disconnected", provider.State{ID: info.ID, Type: info.Type, Name: info.Name})
		}
	}
}

func (o *Orchestrator) connect(info discovery.ProviderInfo, prio int) error {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.ConnectTimeout)
	defer cancel()

	inv, desc, err := o.connector.Connect(ctx, info.Endpoint())
	if err != nil {
		return err
	}
	ops := desc.Operations
	if len(ops) == 0 {
		ops = info.Operations
	}
	return o.AddProvider(&provider.Provider{
		ID:         info.ID,
		Type:       info.Type,
		Name:       info.Name,
		Endpoint:   info.Endpoint(),
		Priority:   prio,
		Operations: ops,
		Invoker:    inv,
	})
}

// AddProvider indexes a connected provider and resubmits the goals waiting
// for operations it resolves
func (o *Orchestrator) AddProvider(p *provider.Provider) error {
	if p.Invoker == nil {
		return fmt.Errorf("provider %s has no invoker", p.ID)
	}
	resolved := o.table.Add(p)
	if st, ok := o.table.Get(p.ID); ok {
		o.publishProvider("connected", st)
	}
	for _, op := range resolved {
		o.retryPostponed(op)
	}
	o.retryResolved()
	return nil
}
