package tasks

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrOrderMismatch = errors.New("order does not match current task ids")
)

// Repository is the store contract shared by every backend. Positions
// of stored tasks always form the contiguous range [0, N-1] once a
// mutating call returns, and List yields ascending position order.
type Repository interface {
	// List returns all tasks ordered by position.
	List() ([]Task, error)

	// Add trims the title and appends a new task at the end. A title
	// that is empty after trimming creates nothing and consumes no id;
	// Add then returns (nil, nil).
	Add(title string) (*Task, error)

	// Toggle flips Done for the given id, or fails with ErrNotFound.
	Toggle(id int64) (Task, error)

	// Remove deletes the task if present and renumbers the survivors.
	// Removing an unknown id is a no-op.
	Remove(id int64) error

	// Stats reports how many tasks are done out of how many exist.
	Stats() (done, total int, err error)

	// Reorder reassigns positions so tasks appear in the order of ids,
	// which must be an exact permutation of the current id set. On
	// ErrOrderMismatch the store is left untouched.
	Reorder(ids []int64) ([]Task, error)
}

func normalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

// sameIDSet reports whether want is a permutation of have.
func sameIDSet(have, want []int64) bool {
	if len(have) != len(want) {
		return false
	}
	seen := make(map[int64]struct{}, len(have))
	for _, id := range have {
		seen[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := seen[id]; !ok {
			return false
		}
		delete(seen, id) // catches duplicates in want
	}
	return len(seen) == 0
}
