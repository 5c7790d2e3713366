// Package cell implements the kiosk's reactive state graph.
//
// The graph has two kinds of cells:
//   - primitive cells hold independently-settable values (current screen,
//     form data, printer status, connectivity, sync summary)
//   - derived cells compute read-only values from other cells through a
//     pure function ("system ready", "can check in", "pending sync")
//
// ARCHITECTURE:
//
// Explicit Dependencies, Lazy Recompute:
// A derived cell declares its dependency list at creation. Every cell
// carries a version from a store-global counter; a derived cell memoizes
// the version of each dependency at its last compute and recomputes on
// read only when a dependency version advanced. Writes never recompute
// anything - several primitive writes before a read cost one recompute.
//
// Batched Writes:
// All writes go through a Batch, which holds the store lock for the whole
// group. A reader either sees none of the batch or all of it; derived
// reads never observe a torn intermediate state. Subscribers are notified
// once per changed cell after the batch commits, outside the lock.
//
// Dependency Graph:
// Dependencies are supplied as already-created cells, so the graph is
// acyclic by construction. Registration still validates the list (nil
// deps, foreign-store deps, empty list) and panics on violation - these
// are configuration defects, not runtime conditions.
//
// Derivation functions must be pure and total. The API gives a compute
// function no way to report failure; a panic inside compute is a
// programming defect and is deliberately not recovered.
package cell
