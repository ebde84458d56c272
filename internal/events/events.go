// Package events publishes task lifecycle notifications to external brokers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTaskCreated Type = "task.created"
	TypeTaskUpdated Type = "task.updated"
	TypeTaskDeleted Type = "task.deleted"
)

// Event is the JSON document sent to the broker.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TaskID     int64     `json:"taskId"`
	OccurredAt time.Time `json:"occurredAt"`
	Task       any       `json:"task,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ Type, taskID int64, task any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		TaskID:     taskID,
		OccurredAt: time.Now().UTC(),
		Task:       task,
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from every Publish call.
	Err error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
