// Package reorder computes a full-collection order from a drag gesture that
// only saw the visible subsequence of the collection.
package reorder

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"scribedesk/internal/domain"
)

// End targets the position after the last visible item.
const End = -1

var (
	ErrUnknownItem   = errors.New("dragged item is not visible in the collection")
	ErrInvalidTarget = errors.New("invalid drop target")
)

// Move relocates the item identified by dragged so that it lands at visible
// position target. Items for which visible returns false keep their relative
// order and their place between visible neighbors. The boolean result is
// false when the drop leaves the order unchanged.
//
// target indexes the visible subsequence as the user saw it, before the drag
// started; an index past the last visible item or End appends. Dropping A
// of [A B C] on target 1 leaves the order unchanged; target 2 gives [B A C].
func Move[T any](full []T, id func(T) string, visible func(T) bool, dragged string, target int) ([]T, bool, error) {
	if target < 0 && target != End {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}

	item, from, ok := lo.FindIndexOf(full, func(it T) bool { return id(it) == dragged })
	if !ok || !visible(item) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownItem, dragged)
	}

	shown := lo.Filter(full, func(it T, _ int) bool { return visible(it) })
	anchor := ""
	if target != End && target < len(shown) {
		anchor = id(shown[target])
	}
	if anchor == dragged {
		return append([]T(nil), full...), false, nil
	}

	rest := make([]T, 0, len(full))
	rest = append(rest, full[:from]...)
	rest = append(rest, full[from+1:]...)

	var next []T
	if anchor == "" {
		next = append(rest, item)
	} else {
		at := lo.IndexOf(lo.Map(rest, func(it T, _ int) string { return id(it) }), anchor)
		next = make([]T, 0, len(full))
		next = append(next, rest[:at]...)
		next = append(next, item)
		next = append(next, rest[at:]...)
	}

	return next, !sameOrder(full, next, id), nil
}

// MoveUnits applies Move to units, treating soft-deleted units as hidden.
func MoveUnits(units []domain.Unit, dragged string, target int) ([]domain.Unit, bool, error) {
	return Move(units, unitID, func(u domain.Unit) bool { return !u.SoftDeleted }, dragged, target)
}

// IDs flattens units into the order payload sent to the store.
func IDs(units []domain.Unit) []string {
	return lo.Map(units, func(u domain.Unit, _ int) string { return u.ID })
}

func unitID(u domain.Unit) string {
	return u.ID
}

func sameOrder[T any](a, b []T, id func(T) string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if id(a[i]) != id(b[i]) {
			return false
		}
	}
	return true
}
