package engine

import (
	"time"

	"github.com/msto63/wiener/internal/script"
)

type frameKind uint8

const (
	frameScript frameKind = iota
	frameCondition
	frameNot
	frameReturn
)

func (k frameKind) String() string {
	switch k {
	case frameCondition:
		return "condition"
	case frameNot:
		return "not"
	case frameReturn:
		return "return"
	default:
		return "script"
	}
}

// Instance is one activation of a template. Synthetic frames (condition,
// not, return) run a slice of the enclosing body and share its bindings.
type Instance struct {
	Node     *script.Node
	Bindings script.Bindings
	Start    time.Time
	Exit     Status

	kind   frameKind
	body   []script.Token
	pc     int
	jumps  []int
	result Status // status of the last finished statement or child frame
	// branchEval is set when a failed condition lands on an elseif that must
	// be evaluated rather than skipped
	branchEval bool

	held    []string
	caller  *Instance
	call    script.Term
	outputs map[string]string // return role -> caller variable
}

func newScriptInstance(node *script.Node, b script.Bindings, caller *Instance, call script.Term) *Instance {
	if b == nil {
		b = script.Bindings{}
	}
	return &Instance{
		Node:     node,
		Bindings: b,
		Start:    time.Now(),
		kind:     frameScript,
		body:     node.Body,
		caller:   caller,
		call:     call,
	}
}

func newSyntheticFrame(kind frameKind, parent *Instance, body []script.Token) *Instance {
	return &Instance{
		Node:     parent.Node,
		Bindings: parent.Bindings,
		Start:    time.Now(),
		kind:     kind,
		body:     body,
		caller:   parent,
	}
}

func (in *Instance) isPrimitive() bool {
	return in.kind == frameScript && in.Node != nil && in.Node.IsPrimitive()
}

func (in *Instance) timedOut(now time.Time) bool {
	return in.kind == frameScript && in.Node != nil && in.Node.Timeout > 0 && now.Sub(in.Start) > in.Node.Timeout
}

func (in *Instance) done() bool {
	return in.pc >= len(in.body)
}

// abort ends the frame with status
func (in *Instance) abort(status Status) {
	in.Exit = status
	in.pc = len(in.body)
}

// Name returns the template name, or the frame kind for synthetic frames
func (in *Instance) Name() string {
	if in.kind != frameScript {
		return in.kind.String()
	}
	if in.Node == nil {
		return ""
	}
	return in.Node.Name
}
