package script

import (
	"sort"
	"time"
)

// Category selects the handler namespace of a primitive
type Category uint8

const (
	// CategoryNone marks a composite script
	CategoryNone Category = iota
	CategoryMotion
	CategoryVision
	CategorySpeech
	CategoryListen
	CategoryMisc
)

func (c Category) String() string {
	switch c {
	case CategoryMotion:
		return "motion"
	case CategoryVision:
		return "vision"
	case CategorySpeech:
		return "speech"
	case CategoryListen:
		return "listen"
	case CategoryMisc:
		return "misc"
	default:
		return "script"
	}
}

// Built-in type roots
const (
	TypeAction    = "action"
	TypePrimitive = "primitive"
)

var categoryRoots = map[string]Category{
	"motion": CategoryMotion,
	"vision": CategoryVision,
	"speech": CategorySpeech,
	"listen": CategoryListen,
	"misc":   CategoryMisc,
}

// Role is a typed script parameter
type Role struct {
	Name    string
	Type    string
	Default *Term
	Return  bool
}

// Node is an immutable script template. Interpreters never modify a Node;
// each activation gets its own instance state.
type Node struct {
	Name           string
	Type           string
	Roles          []Role
	Body           []Token
	Operation      string
	Cost           float64
	Benefit        float64
	Timeout        time.Duration
	UrgencyMin     float64
	UrgencyMax     float64
	Locks          []string
	Preconditions  []Term
	Effects        []Term
	SuccessEffects []Term
	Source         string

	ancestors map[string]struct{}
	category  Category
	order     int
}

// IsPrimitive reports whether the node is executed by a handler
func (n *Node) IsPrimitive() bool {
	return n.category != CategoryNone
}

// Category returns the primitive category, CategoryNone for scripts
func (n *Node) Category() Category {
	return n.category
}

// IsA reports whether typ is the node's type or one of its ancestors
func (n *Node) IsA(typ string) bool {
	_, ok := n.ancestors[typ]
	return ok
}

// Ancestors returns the type chain sorted by name
func (n *Node) Ancestors() []string {
	out := make([]string, 0, len(n.ancestors))
	for a := range n.ancestors {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Role returns the role called name
func (n *Node) Role(name string) (Role, bool) {
	for _, r := range n.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// ReturnRole returns the first role flagged as return value
func (n *Node) ReturnRole() (Role, bool) {
	for _, r := range n.Roles {
		if r.Return {
			return r, true
		}
	}
	return Role{}, false
}

// Postconditions returns always-effects followed by success-only effects
func (n *Node) Postconditions() []Term {
	out := make([]Term, 0, len(n.Effects)+len(n.SuccessEffects))
	out = append(out, n.Effects...)
	return append(out, n.SuccessEffects...)
}

// InvocationTerm builds name(?role1, ?role2, ...)
func (n *Node) InvocationTerm() Term {
	args := make([]Term, len(n.Roles))
	for i, r := range n.Roles {
		args[i] = Var(r.Name)
	}
	return Compound(n.Name, args...)
}

// NewSequence builds a composite script that invokes calls in order.
// Planners use it to hand ready plans to the engine.
func NewSequence(name string, calls []Term) *Node {
	body := make([]Token, len(calls))
	for i, c := range calls {
		body[i] = Invoke(c)
	}
	return &Node{
		Name:      name,
		Type:      TypeAction,
		Body:      body,
		ancestors: map[string]struct{}{TypeAction: {}},
	}
}
