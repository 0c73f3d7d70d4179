package orchestrator

import (
	"time"

	"github.com/msto63/wiener/internal/provider"
)

// EventType distinguishes event payloads
type EventType string

const (
	EventGoal     EventType = "goal"
	EventProvider EventType = "provider"
)

// Event is a goal status change or a provider connect/disconnect
type Event struct {
	Type      EventType       `json:"type"`
	Action    string          `json:"action,omitempty"`
	Goal      *GoalInfo       `json:"goal,omitempty"`
	Provider  *provider.State `json:"provider,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscribe returns a channel receiving events. Slow subscribers miss
// events rather than block the orchestrator.
func (o *Orchestrator) Subscribe() chan Event {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	ch := make(chan Event, 64)
	o.subscribers = append(o.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscriber channel
func (o *Orchestrator) Unsubscribe(ch chan Event) {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	for i, sub := range o.subscribers {
		if sub == ch {
			o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (o *Orchestrator) publish(ev Event) {
	ev.Timestamp = time.Now()
	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- ev:
		default:
			o.logger.Debug("Subscriber full, dropping event", "type", string(ev.Type))
		}
	}
}

func (o *Orchestrator) publishGoal(g *Goal) {
	o.mu.Lock()
	info := g.info()
	o.mu.Unlock()
	o.publish(Event{Type: EventGoal, Action: string(info.Status), Goal: &info})
}

func (o *Orchestrator) publishProvider(action string, st provider.State) {
	o.publish(Event{Type: EventProvider, Action: action, Provider: &st})
}
