package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	xerrors "github.com/s1natex/tasks-crud-api/internal/errors"
	"github.com/s1natex/tasks-crud-api/internal/events"
)

var (
	errBadRequest = xerrors.New(xerrors.CodeBadRequest, "")
	errNotFound   = xerrors.New(xerrors.CodeNotFound, "")
	errInternal   = xerrors.New(xerrors.CodeInternal, "")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestManager() (*Manager, *InMemoryRepo, *events.Recorder) {
	repo := NewInMemoryRepo()
	rec := &events.Recorder{}
	return NewManager(repo, WithPublisher(rec), WithLogger(discardLogger())), repo, rec
}

// failingRepo fails every call with err.
type failingRepo struct{ err error }

func (f failingRepo) Create(context.Context, Task) (Task, error) { return Task{}, f.err }
func (f failingRepo) Get(context.Context, int64) (Task, error)   { return Task{}, f.err }
func (f failingRepo) Update(context.Context, Task) (Task, error) { return Task{}, f.err }
func (f failingRepo) Delete(context.Context, int64) error        { return f.err }
func (f failingRepo) List(context.Context) ([]Task, error)       { return nil, f.err }

func TestManagerCreate(t *testing.T) {
	m, _, rec := newTestManager()
	ctx := context.Background()

	got, err := m.Create(ctx, Task{
		ID:          42,
		Title:       "Finish the project",
		Description: strPtr("Complete the TDD CRUD application by end of the week"),
		DueDate:     strPtr("2024-12-14"),
		CreatedAt:   time.Unix(0, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("caller-supplied id should be ignored, got %d", got.ID)
	}
	if got.CreatedAt.IsZero() || got.CreatedAt.Equal(time.Unix(0, 0)) {
		t.Errorf("expected store-assigned createdAt, got %v", got.CreatedAt)
	}
	if got.Title != "Finish the project" || *got.DueDate != "2024-12-14" || got.Completed {
		t.Errorf("unexpected task: %+v", got)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeTaskCreated || evs[0].TaskID != got.ID {
		t.Fatalf("expected one task.created event, got %+v", evs)
	}
}

func TestManagerCreate_TitleValidation(t *testing.T) {
	for _, title := range []string{"", "   ", "\t\n"} {
		m, repo, rec := newTestManager()

		_, err := m.Create(context.Background(), Task{Title: title})
		if !errors.Is(err, errBadRequest) {
			t.Fatalf("title %q: expected BAD_REQUEST, got %v", title, err)
		}
		e, _ := xerrors.From(err)
		if e.Message() != "Task title cannot be null or empty" {
			t.Fatalf("unexpected message %q", e.Message())
		}
		list, _ := repo.List(context.Background())
		if len(list) != 0 {
			t.Fatalf("title %q: nothing should be persisted, got %+v", title, list)
		}
		if len(rec.Events()) != 0 {
			t.Fatalf("no event expected on validation failure")
		}
	}
}

func TestManagerGetByID(t *testing.T) {
	m, repo, _ := newTestManager()
	ctx := context.Background()

	seed, _ := repo.Create(ctx, Task{Title: "Read the book"})
	got, err := m.GetByID(ctx, seed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != seed.ID || got.Title != "Read the book" {
		t.Fatalf("unexpected task: %+v", got)
	}

	_, err = m.GetByID(ctx, 1234)
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if e, _ := xerrors.From(err); e.Message() != "Task not found with id: 1234" {
		t.Fatalf("unexpected message %q", e.Message())
	}
}

func TestManagerUpdate(t *testing.T) {
	m, repo, rec := newTestManager()
	ctx := context.Background()

	orig, _ := repo.Create(ctx, Task{Title: "Original Title", Description: strPtr("Original Description"), DueDate: strPtr("2024-12-20")})

	got, err := m.Update(ctx, orig.ID, Task{
		ID:          777,
		Title:       "Updated Title",
		Description: strPtr("Updated Description"),
		DueDate:     strPtr("2024-12-25"),
		Completed:   true,
		CreatedAt:   time.Unix(0, 0),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != orig.ID || !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Fatalf("id/createdAt must be preserved: %+v vs %+v", got, orig)
	}
	if got.Title != "Updated Title" || *got.Description != "Updated Description" || *got.DueDate != "2024-12-25" || !got.Completed {
		t.Fatalf("fields not replaced: %+v", got)
	}

	stored, _ := repo.Get(ctx, orig.ID)
	if stored.Title != "Updated Title" {
		t.Fatalf("update not persisted: %+v", stored)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeTaskUpdated {
		t.Fatalf("expected one task.updated event, got %+v", evs)
	}
}

func TestManagerUpdate_ClearsOptionalFields(t *testing.T) {
	m, repo, _ := newTestManager()
	ctx := context.Background()

	orig, _ := repo.Create(ctx, Task{Title: "t", Description: strPtr("d"), DueDate: strPtr("2024-01-01")})
	got, err := m.Update(ctx, orig.ID, Task{Title: "t"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Description != nil || got.DueDate != nil {
		t.Fatalf("expected optional fields cleared, got %+v", got)
	}
}

func TestManagerUpdate_InvalidTitleLeavesRecord(t *testing.T) {
	m, repo, rec := newTestManager()
	ctx := context.Background()

	orig, _ := repo.Create(ctx, Task{Title: "Original Title", Description: strPtr("Original Description")})

	_, err := m.Update(ctx, orig.ID, Task{Title: "", Description: strPtr("Updated Description")})
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected BAD_REQUEST, got %v", err)
	}
	stored, _ := repo.Get(ctx, orig.ID)
	if stored.Title != "Original Title" || *stored.Description != "Original Description" {
		t.Fatalf("stored record changed: %+v", stored)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestManagerUpdate_ValidationBeforeLookup(t *testing.T) {
	m, _, _ := newTestManager()

	_, err := m.Update(context.Background(), 9999, Task{Title: " "})
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected BAD_REQUEST for empty title on unknown id, got %v", err)
	}

	_, err = m.Update(context.Background(), 9999, Task{Title: "valid"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestManagerDelete(t *testing.T) {
	m, repo, rec := newTestManager()
	ctx := context.Background()

	seed, _ := repo.Create(ctx, Task{Title: "Task to be deleted"})
	if err := m.Delete(ctx, seed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetByID(ctx, seed.ID); !errors.Is(err, errNotFound) {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
	if err := m.Delete(ctx, 9999); !errors.Is(err, errNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown id, got %v", err)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeTaskDeleted || evs[0].Task != nil {
		t.Fatalf("expected one task.deleted event without payload, got %+v", evs)
	}
}

func TestManagerList(t *testing.T) {
	m, repo, _ := newTestManager()
	ctx := context.Background()

	_, _ = repo.Create(ctx, Task{Title: "a"})
	_, _ = repo.Create(ctx, Task{Title: "b"})

	list, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Title != "a" || list[1].Title != "b" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestManager_StoreFailureIsInternal(t *testing.T) {
	cause := errors.New("connection refused")
	m := NewManager(failingRepo{err: cause}, WithLogger(discardLogger()))
	ctx := context.Background()

	_, err := m.Create(ctx, Task{Title: "x"})
	if !errors.Is(err, errInternal) || !errors.Is(err, cause) {
		t.Fatalf("expected INTERNAL_ERROR wrapping cause, got %v", err)
	}
	if e, _ := xerrors.From(err); e.Message() != "internal server error" {
		t.Fatalf("internal message should not leak cause: %q", e.Message())
	}
	if _, err := m.GetByID(ctx, 1); !errors.Is(err, errInternal) {
		t.Fatalf("expected INTERNAL_ERROR on get, got %v", err)
	}
	if _, err := m.List(ctx); !errors.Is(err, errInternal) {
		t.Fatalf("expected INTERNAL_ERROR on list, got %v", err)
	}
}

func TestManager_PublishFailureDoesNotFailOperation(t *testing.T) {
	rec := &events.Recorder{Err: errors.New("broker down")}
	m := NewManager(NewInMemoryRepo(), WithPublisher(rec), WithLogger(discardLogger()))

	if _, err := m.Create(context.Background(), Task{Title: "still works"}); err != nil {
		t.Fatalf("create should succeed despite publish failure: %v", err)
	}
}
