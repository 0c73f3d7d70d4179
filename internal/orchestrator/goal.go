package orchestrator

import (
	"errors"
	"time"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/internal/store"
)

// Errors
var (
	ErrUnknownGoal = errors.New("unknown goal")
	ErrNotRunning  = errors.New("goal is not running")
	ErrClosed      = errors.New("orchestrator closed")
	ErrNoScript    = errors.New("no such script")
)

// Status is the lifecycle state of a goal
type Status string

const (
	StatusInitialize Status = "INITIALIZE"
	StatusProgress   Status = "PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFail       Status = "FAIL"
	StatusCancel     Status = "CANCEL"
	StatusUnknown    Status = "UNKNOWN"
)

// Terminal reports whether s is a final state
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFail || s == StatusCancel
}

// Goal is one entry of the goal table
type Goal struct {
	ID        int64
	Predicate script.Term
	Status    Status
	Causes    []script.Term
	Parent    int64
	Delegated bool
	Script    string
	Postponed string
	CreatedAt time.Time
	UpdatedAt time.Time

	interp *engine.Interpreter
}

// pursued reports whether the goal is starting, running or delegated
func (g *Goal) pursued() bool {
	return !g.Status.Terminal()
}

// GoalInfo is the exported view of a goal
type GoalInfo struct {
	ID        int64     `json:"id"`
	Predicate string    `json:"predicate"`
	Status    Status    `json:"status"`
	Causes    []string  `json:"causes,omitempty"`
	Parent    int64     `json:"parent,omitempty"`
	Delegated bool      `json:"delegated,omitempty"`
	Script    string    `json:"script,omitempty"`
	Postponed string    `json:"postponed_on,omitempty"`
	Cycles    int64     `json:"cycles"`
	Depth     int       `json:"depth"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Goal) info() GoalInfo {
	info := GoalInfo{
		ID:        g.ID,
		Predicate: g.Predicate.String(),
		Status:    g.Status,
		Causes:    termStrings(g.Causes),
		Parent:    g.Parent,
		Delegated: g.Delegated,
		Script:    g.Script,
		Postponed: g.Postponed,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	if g.interp != nil {
		info.Cycles = g.interp.Cycles()
		info.Depth = g.interp.Depth()
	}
	return info
}

func (g *Goal) record() store.Record {
	return store.Record{
		ID:        g.ID,
		Predicate: g.Predicate.String(),
		Status:    string(g.Status),
		Causes:    termStrings(g.Causes),
		Parent:    g.Parent,
		Delegated: g.Delegated,
		Script:    g.Script,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// infoFromRecord restores the exported view of a goal from history
func infoFromRecord(rec store.Record) GoalInfo {
	return GoalInfo{
		ID:        rec.ID,
		Predicate: rec.Predicate,
		Status:    Status(rec.Status),
		Causes:    rec.Causes,
		Parent:    rec.Parent,
		Delegated: rec.Delegated,
		Script:    rec.Script,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func termStrings(ts []script.Term) []string {
	if len(ts) == 0 {
		return nil
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}
