// Package ordering computes dense zero-based sibling sequences. Every
// function is pure: inputs are never modified and the returned slice's
// indices are the new order values.
package ordering

import (
	"errors"
	"fmt"
)

var (
	ErrNotInSequence     = errors.New("item not in sequence")
	ErrAlreadyInSequence = errors.New("item already in sequence")
)

// Clamp limits pos to [0, n].
func Clamp(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos > n {
		return n
	}
	return pos
}

// Insert places id at pos, shifting later items by one. Out-of-range
// positions append or prepend.
func Insert(ids []string, id string, pos int) []string {
	pos = Clamp(pos, len(ids))
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:pos]...)
	out = append(out, id)
	return append(out, ids[pos:]...)
}

// Remove drops id and closes the gap. It returns the index id held.
func Remove(ids []string, id string) ([]string, int, error) {
	idx := IndexOf(ids, id)
	if idx < 0 {
		return nil, -1, fmt.Errorf("remove %s: %w", id, ErrNotInSequence)
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:idx]...)
	return append(out, ids[idx+1:]...), idx, nil
}

// Reorder moves id to pos within the same sequence.
func Reorder(ids []string, id string, pos int) ([]string, error) {
	rest, _, err := Remove(ids, id)
	if err != nil {
		return nil, err
	}
	return Insert(rest, id, pos), nil
}

// Transfer moves id from src into dst at pos and returns both new sequences.
func Transfer(src, dst []string, id string, pos int) ([]string, []string, error) {
	if IndexOf(dst, id) >= 0 {
		return nil, nil, fmt.Errorf("transfer %s: %w", id, ErrAlreadyInSequence)
	}
	rest, _, err := Remove(src, id)
	if err != nil {
		return nil, nil, err
	}
	return rest, Insert(dst, id, pos), nil
}

func IndexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

// IsDense reports whether orders is a permutation of 0..len(orders)-1.
func IsDense(orders []int) bool {
	seen := make([]bool, len(orders))
	for _, o := range orders {
		if o < 0 || o >= len(orders) || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}
