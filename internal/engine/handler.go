package engine

import (
	"context"
	"errors"
	"time"

	"github.com/msto63/wiener/internal/script"
)

// Sentinel errors a Handler may return. Transport layers wrap them so that
// errors.Is keeps working.
var (
	// ErrReferenceUnavailable means no live provider offers the operation
	ErrReferenceUnavailable = errors.New("no live reference for operation")
	// ErrTimeout means the remote call exceeded its budget
	ErrTimeout = errors.New("operation timed out")
	// ErrRemote is any other remote failure
	ErrRemote = errors.New("remote operation failed")
)

// Request describes one primitive execution
type Request struct {
	Goal      int64
	Node      *script.Node
	Operation string
	Args      []script.Term
	// Timeout is the primitive's declared budget, zero for the default
	Timeout time.Duration
}

// Handler executes the primitives of one category
type Handler interface {
	Execute(ctx context.Context, req Request) (script.Term, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req Request) (script.Term, error)

func (f HandlerFunc) Execute(ctx context.Context, req Request) (script.Term, error) {
	return f(ctx, req)
}

// Scripts resolves templates by name and by postcondition
type Scripts interface {
	Lookup(name string) (*script.Node, bool)
	ByPostcondition(goal script.Term) []script.Match
}

// Host is the orchestrator side of an interpreter
type Host interface {
	// Slice is the current cooperative time slice
	Slice() time.Duration
	// Affect weighs a template's benefit in choose
	Affect(name string) float64
	// Emit queues state updates produced by goal
	Emit(goal int64, effects []script.Term)
	// Outcome reports how a script invocation ended
	Outcome(name string, success bool)
	// Post submits a sub-goal of parent
	Post(parent int64, goal script.Term) (int64, error)
}

// Facts answers holds queries
type Facts interface {
	Query(pattern script.Term) []script.Bindings
}

// Overrider may permit a forbidden action
type Overrider interface {
	Permit(ctx context.Context, goal int64, action, cause script.Term) bool
}
