package tasks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	xerrors "github.com/s1natex/tasks-crud-api/internal/errors"
	"github.com/s1natex/tasks-crud-api/internal/httpjson"
)

const maxBodyBytes = 1 << 20

type taskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
	Completed   bool    `json:"completed"`
}

func (req taskRequest) toTask() Task {
	return Task{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Completed:   req.Completed,
	}
}

func RegisterRoutes(r chi.Router, m *Manager) {
	r.Post("/api/tasks", createTask(m))
	r.Get("/api/tasks", listTasks(m))
	r.Get("/api/tasks/{id}", getTask(m))
	r.Put("/api/tasks/{id}", updateTask(m))
	r.Delete("/api/tasks/{id}", deleteTask(m))
}

func createTask(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTask(w, r)
		if !ok {
			return
		}
		t, err := m.Create(r.Context(), req.toTask())
		if err != nil {
			writeError(w, err)
			return
		}
		httpjson.Write(w, http.StatusCreated, t)
	}
}

func listTasks(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := m.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, list)
	}
}

func getTask(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		t, err := m.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, t)
	}
}

func updateTask(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		req, ok := decodeTask(w, r)
		if !ok {
			return
		}
		t, err := m.Update(r.Context(), id, req.toTask())
		if err != nil {
			writeError(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, t)
	}
}

func deleteTask(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if err := m.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeTask(w http.ResponseWriter, r *http.Request) (taskRequest, bool) {
	var req taskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httpjson.WriteError(w, xerrors.CodeBadRequest, "invalid JSON body")
		return taskRequest{}, false
	}
	return req, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpjson.WriteError(w, xerrors.CodeBadRequest, "invalid task id: "+raw)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := xerrors.From(err)
	if !ok {
		e = xerrors.New(xerrors.CodeInternal, "")
	}
	httpjson.WriteError(w, e.Code(), e.Message())
}
