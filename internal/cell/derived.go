package cell

import "fmt"

// NewDerived registers a read-only cell computed from deps.
//
// compute must be pure (no side effects, deterministic over dependency
// values) and total - it receives a getter for its declared deps and must
// produce a value for every reachable dependency state. Defensive defaults
// belong inside compute, not in the caller.
//
// Dependencies must already exist, which keeps the graph acyclic by
// construction. Registration panics on an empty list, a nil dependency,
// or a dependency owned by another store - all configuration defects.
//
// The value is computed lazily: nothing runs until the first read, and a
// read recomputes only when some dependency's version advanced since the
// last compute.
func (s *Store) NewDerived(name string, compute func(get func(*Cell) any) any, deps ...*Cell) *Cell {
	if compute == nil {
		panic(fmt.Sprintf("cell: derived cell %q has nil compute function", name))
	}
	if len(deps) == 0 {
		panic(fmt.Sprintf("cell: derived cell %q has no dependencies", name))
	}
	for i, dep := range deps {
		if dep == nil {
			panic(fmt.Sprintf("cell: derived cell %q has nil dependency at index %d", name, i))
		}
		if dep.store != s {
			panic(fmt.Sprintf("cell: derived cell %q depends on cell %q from another store", name, dep.name))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	depsCopy := make([]*Cell, len(deps))
	copy(depsCopy, deps)

	c := &Cell{
		store:   s,
		name:    name,
		compute: compute,
		deps:    depsCopy,
		depVers: make([]uint64, len(depsCopy)),
		subs:    make(map[int]func(any)),
	}
	for _, dep := range depsCopy {
		dep.dependents = append(dep.dependents, c)
	}
	return c
}
