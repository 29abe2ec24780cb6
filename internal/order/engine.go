// Package order computes fractional position values for items in an ordered
// container. New items are placed at the midpoint between neighbors so an
// insert never renumbers unrelated siblings.
package order

import (
	"errors"
	"sort"
)

const (
	// BaseOrder is the position assigned to the first item of an empty container.
	BaseOrder = 1000.0
	// Increment is the gap between consecutive items after a rebalance and the
	// step used when appending at the end.
	Increment = 1000.0
	// Epsilon is the smallest usable gap between adjacent orders. Below this,
	// repeated midpoint bisection has exhausted float64 precision and the
	// container needs rebalancing.
	Epsilon = 1e-6
)

// ErrNotFound is returned when an intent references an item id that is not in
// the container. Callers must re-fetch the current ordering and retry.
var ErrNotFound = errors.New("order: referenced item not found")

// Item is the minimal view of an ordered item the engine needs.
type Item struct {
	ID    string
	Order float64
}

// Position describes where an item should be inserted.
type Position int

const (
	// AtStart places the item before all existing items.
	AtStart Position = iota
	// AtEnd places the item after all existing items.
	AtEnd
	// After places the item directly after the referenced item.
	After
	// Before places the item directly before the referenced item.
	Before
)

// Intent is an insertion request: a position and, for After/Before, the id of
// the reference item.
type Intent struct {
	Position Position
	RefID    string
}

// Compute returns the order value for inserting a new item into existing per
// the intent. existing is sorted by order ascending before use; caller order
// is not trusted. Returns ErrNotFound if the intent references an unknown id.
func Compute(existing []Item, intent Intent) (float64, error) {
	items := make([]Item, len(existing))
	copy(items, existing)
	sort.Slice(items, func(i, j int) bool { return items[i].Order < items[j].Order })

	if len(items) == 0 {
		return BaseOrder, nil
	}

	switch intent.Position {
	case AtStart:
		return items[0].Order / 2, nil
	case AtEnd:
		return items[len(items)-1].Order + Increment, nil
	case After:
		idx := indexOf(items, intent.RefID)
		if idx < 0 {
			return 0, ErrNotFound
		}
		if idx == len(items)-1 {
			return items[idx].Order + Increment, nil
		}
		return (items[idx].Order + items[idx+1].Order) / 2, nil
	case Before:
		idx := indexOf(items, intent.RefID)
		if idx < 0 {
			return 0, ErrNotFound
		}
		if idx == 0 {
			return items[0].Order / 2, nil
		}
		return (items[idx-1].Order + items[idx].Order) / 2, nil
	default:
		return 0, ErrNotFound
	}
}

// NeedsRebalancing reports whether any adjacent gap in items is below Epsilon.
// A true result means future midpoint inserts between those neighbors may
// collide; the container should be rebalanced.
func NeedsRebalancing(items []Item) bool {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Order-sorted[i-1].Order < Epsilon {
			return true
		}
	}
	return false
}

// Rebalance returns the items reassigned to evenly spaced orders
// (BaseOrder + i*Increment) preserving their relative order. The caller must
// apply the result atomically against durable storage so a concurrent insert
// is not clobbered.
func Rebalance(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = BaseOrder + float64(i)*Increment
	}
	return out
}

// InitialOrders returns count evenly spaced order values starting at
// BaseOrder, for bulk-creation paths such as applying a board template.
func InitialOrders(count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = BaseOrder + float64(i)*Increment
	}
	return out
}

func indexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
