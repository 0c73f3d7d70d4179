package script

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TypeDef declares a type and its supertype
type TypeDef struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
}

var builtinTypes = []TypeDef{
	{Name: TypeAction},
	{Name: TypePrimitive, Parent: TypeAction},
	{Name: "motion", Parent: TypePrimitive},
	{Name: "vision", Parent: TypePrimitive},
	{Name: "speech", Parent: TypePrimitive},
	{Name: "listen", Parent: TypePrimitive},
	{Name: "misc", Parent: TypePrimitive},
}

// Registry is an immutable set of script templates. It is safe for
// concurrent use without locking.
type Registry struct {
	nodes    map[string]*Node
	ordered  []*Node
	parents  map[string]string
	loadedAt time.Time
}

// Match is a template whose postcondition unifies with a goal
type Match struct {
	Node     *Node
	Effect   Term
	Bindings Bindings
}

// NewRegistry validates the templates and builds a registry. Built-in types
// and misc primitives are always present. The registry takes ownership of
// the nodes.
func NewRegistry(types []TypeDef, nodes []*Node) (*Registry, error) {
	r := &Registry{
		nodes:    make(map[string]*Node),
		parents:  make(map[string]string),
		loadedAt: time.Now(),
	}
	for _, td := range append(append([]TypeDef{}, builtinTypes...), types...) {
		if prev, ok := r.parents[td.Name]; ok && prev != td.Parent {
			return nil, fmt.Errorf("type %q redeclared with parent %q (was %q)", td.Name, td.Parent, prev)
		}
		r.parents[td.Name] = td.Parent
	}
	for name, parent := range r.parents {
		if parent != "" {
			if _, ok := r.parents[parent]; !ok {
				return nil, fmt.Errorf("%w: %q (parent of %q)", ErrUnknownType, parent, name)
			}
		}
		if _, err := r.chain(name); err != nil {
			return nil, err
		}
	}

	for _, n := range append(builtinNodes(), nodes...) {
		if err := r.add(n); err != nil {
			return nil, err
		}
	}
	for _, n := range r.ordered {
		if err := r.validateBody(n); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) chain(typ string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for t := typ; t != ""; t = r.parents[t] {
		if seen[t] {
			return nil, fmt.Errorf("%w at %q", ErrTypeCycle, t)
		}
		if _, ok := r.parents[t]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func (r *Registry) add(n *Node) error {
	if n.Name == "" {
		return ErrMissingName
	}
	if IsKeyword(n.Name) {
		return fmt.Errorf("%w: %q", ErrKeywordName, n.Name)
	}
	if _, ok := r.nodes[n.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateScript, n.Name)
	}
	if n.Type == "" {
		n.Type = TypeAction
	}
	chain, err := r.chain(n.Type)
	if err != nil {
		return fmt.Errorf("script %q: %w", n.Name, err)
	}

	n.ancestors = make(map[string]struct{}, len(chain))
	n.category = CategoryNone
	primitive := false
	for _, t := range chain {
		n.ancestors[t] = struct{}{}
		if c, ok := categoryRoots[t]; ok && n.category == CategoryNone {
			n.category = c
		}
		if t == TypePrimitive {
			primitive = true
		}
	}
	if primitive && n.category == CategoryNone {
		n.category = CategoryMisc
	}
	if n.IsPrimitive() {
		if len(n.Body) > 0 {
			return fmt.Errorf("%w: %q", ErrPrimitiveBody, n.Name)
		}
		if n.Operation == "" {
			n.Operation = n.Name
		}
	}

	n.order = len(r.ordered)
	r.nodes[n.Name] = n
	r.ordered = append(r.ordered, n)
	return nil
}

func (r *Registry) validateBody(n *Node) error {
	for _, tok := range n.Body {
		if tok.Kind != TokInvoke {
			continue
		}
		target, ok := r.nodes[tok.Call.Functor()]
		if !ok {
			return fmt.Errorf("%w: %s in script %q", ErrUnknownScript, tok.Call, n.Name)
		}
		if tok.Call.Arity() > len(target.Roles) {
			return fmt.Errorf("%w: %s in script %q", ErrTooManyArgs, tok.Call, n.Name)
		}
	}
	return nil
}

// Lookup returns the template called name
func (r *Registry) Lookup(name string) (*Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// Nodes returns all templates in declaration order, built-ins first
func (r *Registry) Nodes() []*Node {
	out := make([]*Node, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of templates
func (r *Registry) Len() int {
	return len(r.ordered)
}

// LoadedAt returns the build time
func (r *Registry) LoadedAt() time.Time {
	return r.loadedAt
}

// IsA reports whether typ equals ancestor or descends from it
func (r *Registry) IsA(typ, ancestor string) bool {
	chain, err := r.chain(typ)
	if err != nil {
		return false
	}
	for _, t := range chain {
		if t == ancestor {
			return true
		}
	}
	return false
}

// ByPostcondition returns, in declaration order, every template with a
// postcondition that unifies with goal. Variables in goal are renamed apart
// from template variables.
func (r *Registry) ByPostcondition(goal Term) []Match {
	renamed := Rename(goal, "_g.")
	var out []Match
	for _, n := range r.ordered {
		for _, eff := range n.Postconditions() {
			if b, ok := Unify(eff, renamed, nil); ok {
				out = append(out, Match{Node: n, Effect: eff, Bindings: b})
				break
			}
		}
	}
	return out
}

// Library holds the current registry and swaps it atomically on reload
type Library struct {
	current atomic.Pointer[Registry]
}

// NewLibrary wraps r. A nil registry is replaced by one holding only built-ins.
func NewLibrary(r *Registry) *Library {
	if r == nil {
		r, _ = NewRegistry(nil, nil)
	}
	l := &Library{}
	l.current.Store(r)
	return l
}

// Registry returns the current registry
func (l *Library) Registry() *Registry {
	return l.current.Load()
}

// Swap installs r and returns the previous registry
func (l *Library) Swap(r *Registry) *Registry {
	return l.current.Swap(r)
}

func (l *Library) Lookup(name string) (*Node, bool) {
	return l.Registry().Lookup(name)
}

func (l *Library) ByPostcondition(goal Term) []Match {
	return l.Registry().ByPostcondition(goal)
}
