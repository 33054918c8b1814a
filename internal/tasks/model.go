package tasks

// Task is an immutable value: every mutation builds a replacement and
// swaps it into the store, so callers holding an old copy never see a
// half-applied change.
type Task struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Done     bool   `json:"done"`
	Position int    `json:"position"`
}
