package tasks

import "sync"

// MemoryRepo keeps tasks in an ordered slice; slice index doubles as
// the position. Lifetime is the process lifetime, so it suits tests
// and ephemeral sessions.
type MemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	tasks []Task
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) List() ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out, nil
}

func (r *MemoryRepo) Add(title string) (*Task, error) {
	title = normalizeTitle(title)
	if title == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := Task{
		ID:       r.seq,
		Title:    title,
		Done:     false,
		Position: len(r.tasks),
	}
	r.tasks = append(r.tasks, t)
	return &t, nil
}

func (r *MemoryRepo) Toggle(id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tasks {
		if t.ID == id {
			t.Done = !t.Done
			r.tasks[i] = t
			return t, nil
		}
	}
	return Task{}, ErrNotFound
}

func (r *MemoryRepo) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.tasks[:0]
	for _, t := range r.tasks {
		if t.ID == id {
			continue
		}
		t.Position = len(kept)
		kept = append(kept, t)
	}
	r.tasks = kept
	return nil
}

func (r *MemoryRepo) Stats() (done, total int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if t.Done {
			done++
		}
	}
	return done, len(r.tasks), nil
}

func (r *MemoryRepo) Reorder(ids []int64) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make([]int64, len(r.tasks))
	byID := make(map[int64]Task, len(r.tasks))
	for i, t := range r.tasks {
		current[i] = t.ID
		byID[t.ID] = t
	}
	if !sameIDSet(current, ids) {
		return nil, ErrOrderMismatch
	}

	next := make([]Task, 0, len(ids))
	for i, id := range ids {
		t := byID[id]
		t.Position = i
		next = append(next, t)
	}
	r.tasks = next

	out := make([]Task, len(next))
	copy(out, next)
	return out, nil
}
