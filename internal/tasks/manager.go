package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xerrors "github.com/s1natex/tasks-crud-api/internal/errors"
	"github.com/s1natex/tasks-crud-api/internal/events"
)

const msgTitleRequired = "Task title cannot be null or empty"

const (
	opCreate = "create"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
	opList   = "list"
)

// Manager validates task input and delegates persistence to a Repository.
type Manager struct {
	repo      Repository
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Manager)

// WithPublisher sets where lifecycle events go. Defaults to events.Noop.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:      repo,
		publisher: events.Noop{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("tasks"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create persists t and returns it with the store-assigned id and createdAt.
// Any id or createdAt on t is ignored.
func (m *Manager) Create(ctx context.Context, t Task) (_ Task, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Create")
	defer func() { m.finish(span, opCreate, err) }()

	if err := validateTitle(t.Title); err != nil {
		return Task{}, err
	}
	t.ID = 0
	t.CreatedAt = time.Time{}

	created, err := m.repo.Create(ctx, t)
	if err != nil {
		return Task{}, m.storeError(ctx, opCreate, 0, err)
	}
	span.SetAttributes(attribute.Int64("task.id", created.ID))

	m.logger.InfoContext(ctx, "task_created", slog.Int64("task_id", created.ID))
	m.publish(ctx, events.TypeTaskCreated, created.ID, created)
	return created, nil
}

func (m *Manager) GetByID(ctx context.Context, id int64) (_ Task, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.GetByID", trace.WithAttributes(attribute.Int64("task.id", id)))
	defer func() { m.finish(span, opGet, err) }()

	t, err := m.repo.Get(ctx, id)
	if err != nil {
		return Task{}, m.storeError(ctx, opGet, id, err)
	}
	return t, nil
}

// Update replaces title, description, dueDate and completed of task id.
// The title is validated before the lookup.
func (m *Manager) Update(ctx context.Context, id int64, data Task) (_ Task, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Update", trace.WithAttributes(attribute.Int64("task.id", id)))
	defer func() { m.finish(span, opUpdate, err) }()

	if err := validateTitle(data.Title); err != nil {
		return Task{}, err
	}

	existing, err := m.repo.Get(ctx, id)
	if err != nil {
		return Task{}, m.storeError(ctx, opUpdate, id, err)
	}
	existing.Title = data.Title
	existing.Description = data.Description
	existing.DueDate = data.DueDate
	existing.Completed = data.Completed

	updated, err := m.repo.Update(ctx, existing)
	if err != nil {
		return Task{}, m.storeError(ctx, opUpdate, id, err)
	}

	m.logger.InfoContext(ctx, "task_updated", slog.Int64("task_id", id))
	m.publish(ctx, events.TypeTaskUpdated, id, updated)
	return updated, nil
}

func (m *Manager) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Delete", trace.WithAttributes(attribute.Int64("task.id", id)))
	defer func() { m.finish(span, opDelete, err) }()

	if _, err := m.repo.Get(ctx, id); err != nil {
		return m.storeError(ctx, opDelete, id, err)
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return m.storeError(ctx, opDelete, id, err)
	}

	m.logger.InfoContext(ctx, "task_deleted", slog.Int64("task_id", id))
	m.publish(ctx, events.TypeTaskDeleted, id, nil)
	return nil
}

// List returns every task ordered by id.
func (m *Manager) List(ctx context.Context) (_ []Task, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.List")
	defer func() { m.finish(span, opList, err) }()

	list, err := m.repo.List(ctx)
	if err != nil {
		return nil, m.storeError(ctx, opList, 0, err)
	}
	return list, nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return xerrors.New(xerrors.CodeBadRequest, msgTitleRequired)
	}
	return nil
}

func notFound(id int64) error {
	return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("Task not found with id: %d", id))
}

// storeError maps ErrTaskNotFound to the not-found kind and anything else to
// an internal error carrying the cause.
func (m *Manager) storeError(ctx context.Context, op string, id int64, err error) error {
	if errors.Is(err, ErrTaskNotFound) {
		return notFound(id)
	}
	m.logger.ErrorContext(ctx, "task_store_error",
		slog.String("req_id", chimw.GetReqID(ctx)),
		slog.String("op", op),
		slog.Int64("task_id", id),
		slog.String("error", err.Error()),
	)
	return xerrors.Wrap(xerrors.CodeInternal, err, "")
}

func (m *Manager) publish(ctx context.Context, typ events.Type, id int64, payload any) {
	if err := m.publisher.Publish(ctx, events.New(typ, id, payload)); err != nil {
		m.logger.WarnContext(ctx, "task_event_publish_failed",
			slog.String("type", string(typ)),
			slog.Int64("task_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) finish(span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		result = string(xerrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	span.End()
}
