package deploy

import (
	"fmt"
	"sort"
	"strings"
)

// Selector names the environment a run targets, e.g. "development".
type Selector string

// Strategy names a plan resolution strategy.
type Strategy string

const (
	StrategyStatic      Strategy = "static"
	StrategyTopological Strategy = "topological"
	StrategyNoOp        Strategy = "noop"
)

// Plan is the ordered list of descriptors selected for an environment.
type Plan struct {
	Selector    Selector
	Strategy    Strategy
	Descriptors []Descriptor
}

// IsNoOp reports whether the plan deploys nothing.
func (p Plan) IsNoOp() bool {
	return len(p.Descriptors) == 0
}

// Names returns the descriptor names in plan order.
func (p Plan) Names() []string {
	names := make([]string, len(p.Descriptors))
	for i, d := range p.Descriptors {
		names[i] = d.Name
	}
	return names
}

// Resolver produces the ordered descriptors of a plan.
type Resolver interface {
	Strategy() Strategy
	Resolve() ([]Descriptor, error)
}

// StaticPlan returns its descriptors in the order they were given.
// The author of the list is responsible for dependency order; only
// duplicate names are rejected.
type StaticPlan []Descriptor

func (p StaticPlan) Strategy() Strategy { return StrategyStatic }

func (p StaticPlan) Resolve() ([]Descriptor, error) {
	seen := make(map[string]bool, len(p))
	for _, d := range p {
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDescriptor, d.Name)
		}
		seen[d.Name] = true
	}
	out := make([]Descriptor, len(p))
	copy(out, p)
	return out, nil
}

// NoOpPlan deploys nothing.
type NoOpPlan struct{}

func (NoOpPlan) Strategy() Strategy { return StrategyNoOp }

func (NoOpPlan) Resolve() ([]Descriptor, error) { return nil, nil }

// TopologicalPlan orders its descriptors from their declared dependencies.
// Ties are broken by declaration order, so an already valid list is
// returned unchanged.
type TopologicalPlan []Descriptor

func (p TopologicalPlan) Strategy() Strategy { return StrategyTopological }

func (p TopologicalPlan) Resolve() ([]Descriptor, error) {
	index := make(map[string]int, len(p))
	for i, d := range p {
		if _, ok := index[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDescriptor, d.Name)
		}
		index[d.Name] = i
	}

	indegree := make([]int, len(p))
	dependents := make([][]int, len(p))
	for i, d := range p {
		for _, dep := range d.Dependencies() {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s depends on %s which is not in the plan", ErrUnresolvedDependency, d.Name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range p {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]Descriptor, 0, len(p))
	for len(ready) > 0 {
		sort.Ints(ready)
		next := ready[0]
		ready = ready[1:]
		out = append(out, p[next])
		for _, k := range dependents[next] {
			indegree[k]--
			if indegree[k] == 0 {
				ready = append(ready, k)
			}
		}
	}

	if len(out) != len(p) {
		var stuck []string
		for i, d := range p {
			if indegree[i] > 0 {
				stuck = append(stuck, d.Name)
			}
		}
		return nil, fmt.Errorf("%w among %s", ErrCyclicDependency, strings.Join(stuck, ", "))
	}
	return out, nil
}

// PlanBook maps selectors to resolvers. Selectors without an entry resolve
// to the no-op plan.
type PlanBook struct {
	resolvers map[Selector]Resolver
}

// NewPlanBook creates an empty book.
func NewPlanBook() *PlanBook {
	return &PlanBook{resolvers: make(map[Selector]Resolver)}
}

// Register binds sel to r, replacing any previous entry.
func (b *PlanBook) Register(sel Selector, r Resolver) *PlanBook {
	b.resolvers[sel] = r
	return b
}

// Recognizes reports whether sel has a registered resolver.
func (b *PlanBook) Recognizes(sel Selector) bool {
	_, ok := b.resolvers[sel]
	return ok
}

// Selectors returns the registered selectors, sorted.
func (b *PlanBook) Selectors() []Selector {
	out := make([]Selector, 0, len(b.resolvers))
	for sel := range b.resolvers {
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve selects and resolves the plan for sel.
func (b *PlanBook) Resolve(sel Selector) (Plan, error) {
	r, ok := b.resolvers[sel]
	if !ok {
		r = NoOpPlan{}
	}
	descriptors, err := r.Resolve()
	if err != nil {
		return Plan{}, fmt.Errorf("resolve %s plan: %w", sel, err)
	}
	return Plan{Selector: sel, Strategy: r.Strategy(), Descriptors: descriptors}, nil
}

// ValidateOrder checks that names are unique and every dependency of a
// descriptor appears before it.
func ValidateOrder(descriptors []Descriptor) error {
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if seen[d.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateDescriptor, d.Name)
		}
		for _, dep := range d.Dependencies() {
			if !seen[dep] {
				return fmt.Errorf("%w: %s references %s before it is deployed", ErrUnresolvedDependency, d.Name, dep)
			}
		}
		seen[d.Name] = true
	}
	return nil
}
