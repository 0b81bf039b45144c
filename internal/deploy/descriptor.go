// Package deploy resolves deployment plans and deploys their components in order.
package deploy

import (
	"fmt"
	"strings"
)

// SlotKind distinguishes literal constructor arguments from references.
type SlotKind int

const (
	// SlotLiteral carries a value passed to the constructor as is.
	SlotLiteral SlotKind = iota
	// SlotRef is replaced by the deployed address of another component.
	SlotRef
)

// Slot is one constructor argument of a Descriptor.
type Slot struct {
	Kind  SlotKind
	Value any
	Ref   string
}

// Literal returns a slot holding v.
func Literal(v any) Slot {
	return Slot{Kind: SlotLiteral, Value: v}
}

// Ref returns a slot resolved to the address of the named component.
func Ref(component string) Slot {
	return Slot{Kind: SlotRef, Ref: component}
}

func (s Slot) String() string {
	if s.Kind == SlotRef {
		return "&" + s.Ref
	}
	return fmt.Sprintf("%v", s.Value)
}

// Descriptor identifies a deployable unit and its constructor arguments.
type Descriptor struct {
	Name string
	Args []Slot

	// DependsOn lists components that must be deployed first without being
	// passed to the constructor.
	DependsOn []string
}

// Dependencies returns the referenced components followed by DependsOn,
// without duplicates.
func (d Descriptor) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, s := range d.Args {
		if s.Kind == SlotRef && !seen[s.Ref] {
			seen[s.Ref] = true
			deps = append(deps, s.Ref)
		}
	}
	for _, name := range d.DependsOn {
		if !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	return deps
}

func (d Descriptor) String() string {
	args := make([]string, len(d.Args))
	for i, s := range d.Args {
		args[i] = s.String()
	}
	return d.Name + "(" + strings.Join(args, ", ") + ")"
}
