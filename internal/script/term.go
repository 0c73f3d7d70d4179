// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     script
// Description: Terms, bindings and unification for control scripts
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package script

import (
	"strconv"
	"strings"
)

// Kind classifies a Term
type Kind uint8

const (
	KindNone Kind = iota
	KindAtom
	KindNumber
	KindString
	KindVariable
	KindCompound
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindVariable:
		return "variable"
	case KindCompound:
		return "compound"
	default:
		return "none"
	}
}

// Term is an atom, number, string, variable or compound functor(args...).
// Terms are values; Args must not be modified after construction.
type Term struct {
	Kind Kind
	Name string // atom, variable or functor name
	Num  float64
	Str  string
	Args []Term
}

func Atom(name string) Term { return Term{Kind: KindAtom, Name: name} }
func Number(n float64) Term { return Term{Kind: KindNumber, Num: n} }
func String(s string) Term  { return Term{Kind: KindString, Str: s} }
func Var(name string) Term  { return Term{Kind: KindVariable, Name: name} }
func Compound(name string, args ...Term) Term {
	if len(args) == 0 {
		return Atom(name)
	}
	return Term{Kind: KindCompound, Name: name, Args: args}
}

// IsZero reports whether t is the zero Term
func (t Term) IsZero() bool { return t.Kind == KindNone }

// IsVar reports whether t is a variable
func (t Term) IsVar() bool { return t.Kind == KindVariable }

// Functor returns the name of an atom or compound, "" otherwise
func (t Term) Functor() string {
	if t.Kind == KindAtom || t.Kind == KindCompound {
		return t.Name
	}
	return ""
}

// Arity returns the number of arguments
func (t Term) Arity() int { return len(t.Args) }

// Arg returns argument i or the zero Term
func (t Term) Arg(i int) Term {
	if i < 0 || i >= len(t.Args) {
		return Term{}
	}
	return t.Args[i]
}

// Ground reports whether t contains no variables
func (t Term) Ground() bool {
	switch t.Kind {
	case KindVariable:
		return false
	case KindCompound:
		for _, a := range t.Args {
			if !a.Ground() {
				return false
			}
		}
	}
	return true
}

// Equal is structural equality
func (t Term) Equal(o Term) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindNumber:
		return t.Num == o.Num
	case KindString:
		return t.Str == o.Str
	case KindAtom, KindVariable:
		return t.Name == o.Name
	case KindCompound:
		if t.Name != o.Name || len(t.Args) != len(o.Args) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// String renders the canonical form, e.g. at(robot,"dock 2",?x)
func (t Term) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Term) write(b *strings.Builder) {
	switch t.Kind {
	case KindAtom:
		if isPlainAtom(t.Name) {
			b.WriteString(t.Name)
		} else {
			b.WriteString("'" + strings.ReplaceAll(t.Name, "'", "\\'") + "'")
		}
	case KindNumber:
		b.WriteString(strconv.FormatFloat(t.Num, 'g', -1, 64))
	case KindString:
		b.WriteString(strconv.Quote(t.Str))
	case KindVariable:
		b.WriteByte('?')
		b.WriteString(t.Name)
	case KindCompound:
		b.WriteString(Atom(t.Name).String())
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			a.write(b)
		}
		b.WriteByte(')')
	default:
		b.WriteString("<none>")
	}
}

func isPlainAtom(s string) bool {
	if s == "" || !isLower(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdent(s[i]) {
			return false
		}
	}
	return true
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdent(c byte) bool {
	return isLower(c) || isDigit(c) || c == '_' || (c >= 'A' && c <= 'Z')
}

// Bindings maps variable names to terms
type Bindings map[string]Term

// Clone returns a shallow copy
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// maxDeref bounds variable chains so cyclic bindings cannot loop forever
const maxDeref = 64

// Walk follows variable bindings until t is unbound or not a variable
func (b Bindings) Walk(t Term) Term {
	for i := 0; t.Kind == KindVariable && i < maxDeref; i++ {
		v, ok := b[t.Name]
		if !ok || (v.Kind == KindVariable && v.Name == t.Name) {
			return t
		}
		t = v
	}
	return t
}

// Substitute replaces bound variables in t, recursively
func (b Bindings) Substitute(t Term) Term {
	return b.substitute(t, 0)
}

func (b Bindings) substitute(t Term, depth int) Term {
	if depth > maxDeref {
		return t
	}
	t = b.Walk(t)
	if t.Kind != KindCompound {
		return t
	}
	args := make([]Term, len(t.Args))
	for i, a := range t.Args {
		args[i] = b.substitute(a, depth+1)
	}
	return Term{Kind: KindCompound, Name: t.Name, Args: args}
}

// Unify unifies x and y under b. On success it returns the extended
// bindings; b itself is never modified.
func Unify(x, y Term, b Bindings) (Bindings, bool) {
	out := b.Clone()
	if !unify(x, y, out) {
		return nil, false
	}
	return out, true
}

func unify(x, y Term, b Bindings) bool {
	x, y = b.Walk(x), b.Walk(y)
	switch {
	case x.Kind == KindVariable && y.Kind == KindVariable && x.Name == y.Name:
		return true
	case x.Kind == KindVariable:
		if occurs(x.Name, y, b, 0) {
			return false
		}
		b[x.Name] = y
		return true
	case y.Kind == KindVariable:
		return unify(y, x, b)
	case x.Kind != y.Kind:
		return false
	case x.Kind == KindCompound:
		if x.Name != y.Name || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !unify(x.Args[i], y.Args[i], b) {
				return false
			}
		}
		return true
	default:
		return x.Equal(y)
	}
}

func occurs(name string, t Term, b Bindings, depth int) bool {
	if depth > maxDeref {
		return true
	}
	t = b.Walk(t)
	switch t.Kind {
	case KindVariable:
		return t.Name == name
	case KindCompound:
		for _, a := range t.Args {
			if occurs(name, a, b, depth+1) {
				return true
			}
		}
	}
	return false
}

// Rename prefixes every variable in t
func Rename(t Term, prefix string) Term {
	switch t.Kind {
	case KindVariable:
		return Var(prefix + t.Name)
	case KindCompound:
		args := make([]Term, len(t.Args))
		for i, a := range t.Args {
			args[i] = Rename(a, prefix)
		}
		return Term{Kind: KindCompound, Name: t.Name, Args: args}
	}
	return t
}
