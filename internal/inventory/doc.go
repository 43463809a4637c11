// Package inventory models fridge snapshots and the multiset difference
// between them.
//
// A Snapshot is the ordered list of labels a detector reported for one frame,
// one label per detected object. Diff subtracts an after-snapshot from a
// before-snapshot with counts clamped at zero, so only items that were removed
// (or reduced in number) appear in the resulting Delta.
package inventory
