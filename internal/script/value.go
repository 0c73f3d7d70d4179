package script

import (
	"fmt"
	"sort"
)

// ToValue converts t to plain Go data: numbers to float64, atoms and
// strings to string, compounds to {"functor": name, "args": [...]}, unbound
// variables to nil.
func ToValue(t Term) interface{} {
	switch t.Kind {
	case KindNumber:
		return t.Num
	case KindString:
		return t.Str
	case KindAtom:
		return t.Name
	case KindCompound:
		args := make([]interface{}, len(t.Args))
		for i, a := range t.Args {
			args[i] = ToValue(a)
		}
		return map[string]interface{}{"functor": t.Name, "args": args}
	default:
		return nil
	}
}

// FromValue converts plain Go data back to a term. Strings that read as
// plain atoms become atoms.
func FromValue(v interface{}) Term {
	switch x := v.(type) {
	case nil:
		return Atom("none")
	case Term:
		return x
	case bool:
		if x {
			return Atom("true")
		}
		return Atom("false")
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case string:
		if isPlainAtom(x) {
			return Atom(x)
		}
		return String(x)
	case []interface{}:
		args := make([]Term, len(x))
		for i, a := range x {
			args[i] = FromValue(a)
		}
		return Compound("list", args...)
	case map[string]interface{}:
		if f, ok := x["functor"].(string); ok {
			raw, _ := x["args"].([]interface{})
			args := make([]Term, len(raw))
			for i, a := range raw {
				args[i] = FromValue(a)
			}
			return Compound(f, args...)
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		args := make([]Term, len(keys))
		for i, k := range keys {
			args[i] = Compound("kv", Atom(k), FromValue(x[k]))
		}
		return Compound("map", args...)
	default:
		return String(fmt.Sprint(x))
	}
}
