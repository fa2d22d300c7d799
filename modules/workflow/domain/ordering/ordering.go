// Package ordering moves entries between and within ordered collections.
//
// Every function is pure: inputs are never mutated and either both result
// slices are returned or an error is, never a partially applied move.
package ordering

import (
	"fmt"

	"github.com/iota-uz/workflow-console/pkg/serrors"
)

var ErrSourceMismatch = serrors.NewError(
	"ORDERING_SOURCE_MISMATCH",
	"item is not at the claimed source position",
	"Workflow.Errors.SourceMismatch",
)

// Move describes one drag gesture: ItemID leaves SourceIndex of the source
// collection and lands at DestinationIndex of the destination collection.
type Move struct {
	ItemID           string
	SourceIndex      int
	DestinationIndex int
}

// Clamp bounds i to [lo, hi].
func Clamp(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

// IndexOf returns the position of id in list, or -1.
func IndexOf[T any](list []T, id string, keyOf func(T) string) int {
	for i, v := range list {
		if keyOf(v) == id {
			return i
		}
	}
	return -1
}

// Transfer moves an entry from src into dst. convert maps the source element
// type onto the destination one (a bare item becoming a step, or back).
// A destination index past either end is clamped.
func Transfer[S, D any](src []S, dst []D, m Move, keyOf func(S) string, convert func(S) D) ([]S, []D, error) {
	if err := checkSource(src, m, keyOf); err != nil {
		return nil, nil, err
	}

	newSrc := make([]S, 0, len(src)-1)
	newSrc = append(newSrc, src[:m.SourceIndex]...)
	newSrc = append(newSrc, src[m.SourceIndex+1:]...)

	at := Clamp(m.DestinationIndex, 0, len(dst))
	newDst := make([]D, 0, len(dst)+1)
	newDst = append(newDst, dst[:at]...)
	newDst = append(newDst, convert(src[m.SourceIndex]))
	newDst = append(newDst, dst[at:]...)

	return newSrc, newDst, nil
}

// Reorder moves an entry within list. The second result is false when the
// clamped destination equals the source position; the list is then returned
// as an unchanged copy.
func Reorder[T any](list []T, m Move, keyOf func(T) string) ([]T, bool, error) {
	if err := checkSource(list, m, keyOf); err != nil {
		return nil, false, err
	}

	at := Clamp(m.DestinationIndex, 0, len(list)-1)
	if at == m.SourceIndex {
		out := make([]T, len(list))
		copy(out, list)
		return out, false, nil
	}

	moving := list[m.SourceIndex]
	rest := make([]T, 0, len(list)-1)
	rest = append(rest, list[:m.SourceIndex]...)
	rest = append(rest, list[m.SourceIndex+1:]...)

	out := make([]T, 0, len(list))
	out = append(out, rest[:at]...)
	out = append(out, moving)
	out = append(out, rest[at:]...)
	return out, true, nil
}

func checkSource[T any](src []T, m Move, keyOf func(T) string) error {
	if m.SourceIndex < 0 || m.SourceIndex >= len(src) {
		return fmt.Errorf("%w: %q claimed at %d of %d", ErrSourceMismatch, m.ItemID, m.SourceIndex, len(src))
	}
	if got := keyOf(src[m.SourceIndex]); got != m.ItemID {
		return fmt.Errorf("%w: %q claimed at %d, found %q", ErrSourceMismatch, m.ItemID, m.SourceIndex, got)
	}
	return nil
}
