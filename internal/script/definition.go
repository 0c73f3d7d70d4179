package script

import (
	"fmt"
	"time"
)

// File is the YAML layout of one script definition file
type File struct {
	Types   []TypeDef    `yaml:"types"`
	Scripts []Definition `yaml:"scripts"`
}

// Definition is the YAML form of a script template
type Definition struct {
	Name           string    `yaml:"name"`
	Type           string    `yaml:"type"`
	Roles          []RoleDef `yaml:"roles"`
	Body           string    `yaml:"body"`
	Operation      string    `yaml:"operation"`
	Cost           float64   `yaml:"cost"`
	Benefit        float64   `yaml:"benefit"`
	Timeout        string    `yaml:"timeout"`
	Urgency        Urgency   `yaml:"urgency"`
	Locks          []string  `yaml:"locks"`
	Preconditions  []string  `yaml:"preconditions"`
	Effects        []string  `yaml:"effects"`
	SuccessEffects []string  `yaml:"success_effects"`
}

// RoleDef is the YAML form of a role
type RoleDef struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default string `yaml:"default"`
	Return  bool   `yaml:"return"`
}

// Urgency bounds
type Urgency struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Defaults fills in optional fields
func (d *Definition) Defaults() {
	if d.Type == "" {
		d.Type = TypeAction
	}
	if d.Benefit == 0 {
		d.Benefit = 1
	}
	if d.Urgency.Max == 0 {
		d.Urgency.Max = 1
	}
	for i := range d.Roles {
		if d.Roles[i].Type == "" {
			d.Roles[i].Type = "term"
		}
	}
}

// Validate checks the fields that do not depend on other definitions
func (d *Definition) Validate() error {
	if d.Name == "" {
		return ErrMissingName
	}
	if d.Cost < 0 {
		return fmt.Errorf("script %q: cost must not be negative", d.Name)
	}
	if d.Urgency.Min > d.Urgency.Max {
		return fmt.Errorf("script %q: urgency min %v exceeds max %v", d.Name, d.Urgency.Min, d.Urgency.Max)
	}
	seen := make(map[string]bool, len(d.Roles))
	for _, r := range d.Roles {
		if r.Name == "" {
			return fmt.Errorf("script %q: role without name", d.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("script %q: duplicate role %q", d.Name, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// Build parses the definition into a template
func (d *Definition) Build(source string) (*Node, error) {
	n := &Node{
		Name:       d.Name,
		Type:       d.Type,
		Operation:  d.Operation,
		Cost:       d.Cost,
		Benefit:    d.Benefit,
		UrgencyMin: d.Urgency.Min,
		UrgencyMax: d.Urgency.Max,
		Locks:      append([]string(nil), d.Locks...),
		Source:     source,
	}
	if d.Timeout != "" {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return nil, fmt.Errorf("script %q: timeout: %w", d.Name, err)
		}
		n.Timeout = timeout
	}
	for _, rd := range d.Roles {
		role := Role{Name: rd.Name, Type: rd.Type, Return: rd.Return}
		if rd.Default != "" {
			t, err := ParseTerm(rd.Default)
			if err != nil {
				return nil, fmt.Errorf("script %q: default of %q: %w", d.Name, rd.Name, err)
			}
			role.Default = &t
		}
		n.Roles = append(n.Roles, role)
	}
	body, err := ParseBody(d.Body)
	if err != nil {
		return nil, fmt.Errorf("script %q: %w", d.Name, err)
	}
	n.Body = body

	var perr error
	parseAll := func(field string, src []string) []Term {
		out := make([]Term, 0, len(src))
		for _, s := range src {
			t, err := ParseTerm(s)
			if err != nil && perr == nil {
				perr = fmt.Errorf("script %q: %s %q: %w", d.Name, field, s, err)
			}
			out = append(out, t)
		}
		return out
	}
	n.Preconditions = parseAll("precondition", d.Preconditions)
	n.Effects = parseAll("effect", d.Effects)
	n.SuccessEffects = parseAll("success effect", d.SuccessEffects)
	if perr != nil {
		return nil, perr
	}
	return n, nil
}
