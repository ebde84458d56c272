package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTaskNotFound is returned by a Repository when no row matches the id.
var ErrTaskNotFound = errors.New("task not found")

type Repository interface {
	Create(ctx context.Context, t Task) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Update(ctx context.Context, t Task) (Task, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Task, error)
}

type InMemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	store map[int64]Task
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		store: make(map[int64]Task),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, t Task) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t.ID = r.seq
	t.CreatedAt = time.Now().UTC()
	r.store[t.ID] = cloneTask(t)
	return t, nil
}

func (r *InMemoryRepo) Get(_ context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r *InMemoryRepo) Update(_ context.Context, t Task) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.store[t.ID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	existing.Title = t.Title
	existing.Description = t.Description
	existing.DueDate = t.DueDate
	existing.Completed = t.Completed
	r.store[t.ID] = cloneTask(existing)
	return existing, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[id]; !ok {
		return ErrTaskNotFound
	}
	delete(r.store, id)
	return nil
}

func (r *InMemoryRepo) List(_ context.Context) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.store))
	for _, t := range r.store {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// cloneTask copies the optional fields so callers can't mutate stored state.
func cloneTask(t Task) Task {
	t.Description = cloneString(t.Description)
	t.DueDate = cloneString(t.DueDate)
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
