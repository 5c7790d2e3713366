package cell

import (
	"fmt"
	"sync"
)

// Store owns every cell in one kiosk session. Create one per application
// lifetime and pass it by reference; tests create isolated stores freely.
//
// Thread-safety model:
//   - Get / Set / Update / Batch: safe from any goroutine
//   - Subscriber callbacks: invoked outside the store lock, after commit
type Store struct {
	mu      sync.Mutex
	version uint64 // global write counter; each write stamps the cell with the next value
}

// Cell is an addressable unit of reactive state. Primitive cells are
// created with NewCell and written through a Batch; derived cells are
// created with NewDerived and are read-only.
type Cell struct {
	store *Store
	name  string

	value   any
	version uint64

	// derived cells only
	compute    func(get func(*Cell) any) any
	deps       []*Cell
	depVers    []uint64
	computed   bool
	recomputes int

	// dependents are derived cells that list this cell as a dependency.
	// Used only to fan out subscriber notifications after a batch.
	dependents []*Cell

	subs    map[int]func(any)
	nextSub int
}

// NewStore creates an empty store with the version counter at zero.
func NewStore() *Store {
	return &Store{}
}

// NewCell registers a primitive cell holding initial. The name is used in
// diagnostics only and need not be unique.
func (s *Store) NewCell(name string, initial any) *Cell {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	return &Cell{
		store:   s,
		name:    name,
		value:   initial,
		version: s.version,
		subs:    make(map[int]func(any)),
	}
}

// Get returns the cell's current value, recomputing a derived cell first
// if any dependency changed since its last read.
func (s *Store) Get(c *Cell) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.refreshLocked()
	return c.value
}

// Set overwrites a primitive cell's value in its own single-write batch.
func (s *Store) Set(c *Cell, value any) {
	s.Batch(func(b *Batch) {
		b.Set(c, value)
	})
}

// Update applies a read-modify-write to a primitive cell, atomic with
// respect to every other write.
func (s *Store) Update(c *Cell, fn func(old any) any) {
	s.Batch(func(b *Batch) {
		b.Update(c, fn)
	})
}

// Subscribe registers fn to run with the cell's settled value after any
// batch that (directly or transitively) changed it. Returns a cancel
// function. Cancelling is idempotent.
func (s *Store) Subscribe(c *Cell, fn func(value any)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.subs == nil {
		c.subs = make(map[int]func(any))
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(c.subs, id)
	}
}

// Batch groups writes so that no reader observes a partially-applied
// update. Subscriber callbacks for every changed cell (and its derived
// dependents) run once after the batch commits, outside the store lock.
func (s *Store) Batch(fn func(b *Batch)) {
	s.mu.Lock()
	b := &Batch{store: s, changed: make(map[*Cell]bool)}
	fn(b)

	// Collect notifications while still holding the lock: the set of
	// affected cells, with derived values refreshed to their settled state.
	notifies := b.collectNotificationsLocked()
	s.mu.Unlock()

	for _, n := range notifies {
		n.fn(n.value)
	}
}

// Batch is the write handle passed to Store.Batch. It is valid only for
// the duration of the callback.
type Batch struct {
	store   *Store
	changed map[*Cell]bool
}

// Set overwrites a primitive cell's value.
// Panics if called on a derived cell: derived cells are read-only.
func (b *Batch) Set(c *Cell, value any) {
	if c.compute != nil {
		panic(fmt.Sprintf("cell: set on derived cell %q", c.name))
	}
	b.store.version++
	c.value = value
	c.version = b.store.version
	b.changed[c] = true
}

// Update applies fn to the cell's current value and stores the result.
func (b *Batch) Update(c *Cell, fn func(old any) any) {
	b.Set(c, fn(c.value))
}

// Get reads a cell inside the batch. A derived cell read here observes
// the writes already applied by this batch.
func (b *Batch) Get(c *Cell) any {
	c.refreshLocked()
	return c.value
}

type notification struct {
	fn    func(any)
	value any
}

// collectNotificationsLocked walks the changed set and its transitive
// derived dependents and snapshots subscriber callbacks with settled
// values. Only cells that actually have subscribers are refreshed:
// unobserved derived cells stay stale until the next read, so a write
// never triggers a recompute nobody is watching.
func (b *Batch) collectNotificationsLocked() []notification {
	var out []notification
	seen := make(map[*Cell]bool)

	var visit func(c *Cell)
	visit = func(c *Cell) {
		if seen[c] {
			return
		}
		seen[c] = true
		if len(c.subs) > 0 {
			c.refreshLocked()
			for _, fn := range c.subs {
				out = append(out, notification{fn: fn, value: c.value})
			}
		}
		for _, dep := range c.dependents {
			visit(dep)
		}
	}

	for c := range b.changed {
		visit(c)
	}
	return out
}

// refreshLocked brings a derived cell up to date with its dependencies.
// No-op for primitive cells. Caller must hold the store lock.
func (c *Cell) refreshLocked() {
	if c.compute == nil {
		return
	}

	stale := !c.computed
	for i, dep := range c.deps {
		dep.refreshLocked()
		if dep.version != c.depVers[i] {
			stale = true
		}
	}
	if !stale {
		return
	}

	c.value = c.compute(func(dep *Cell) any {
		// Deps were refreshed above; reads here see settled values only.
		return dep.value
	})
	for i, dep := range c.deps {
		c.depVers[i] = dep.version
	}

	// Advance to the newest dependency version so cells derived from this
	// one see the change through the same comparison.
	var max uint64
	for _, dep := range c.deps {
		if dep.version > max {
			max = dep.version
		}
	}
	c.version = max
	c.computed = true
	c.recomputes++
}

// Name returns the cell's diagnostic name.
func (c *Cell) Name() string { return c.name }

// Version returns the cell's current version. Diagnostics only.
func (c *Cell) Version() uint64 {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.version
}

// Recomputes returns how many times a derived cell's compute function has
// run. Used by tests to verify laziness; always 0 for primitive cells.
func (c *Cell) Recomputes() int {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.recomputes
}
