// Package store defines the transactional persistence contract for documents
// and their event-log entries, with an in-memory and a MongoDB backend.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record or event does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a replace loses the optimistic version
	// check against a concurrent writer.
	ErrConflict = errors.New("version conflict")
)

// Record is the persisted form of a document. Version is owned by the store
// and moves only forward; Created is set once and never changed.
type Record struct {
	ID       string           `bson:"_id" json:"id"`
	Type     string           `bson:"type" json:"type"`
	Version  int              `bson:"version" json:"version"`
	Created  time.Time        `bson:"created" json:"created"`
	Modified time.Time        `bson:"modified" json:"modified"`
	Data     map[string][]any `bson:"data" json:"data"`
}

// Event is a pending side effect recorded in the same transaction as the
// document mutation it describes. Events are immutable once written except
// for the topic, which may gain a lock suffix while a consumer processes it.
type Event struct {
	ID      string           `bson:"_id" json:"id"`
	Topic   string           `bson:"topic" json:"topic"`
	Ref     string           `bson:"ref" json:"ref"`
	Created time.Time        `bson:"created" json:"created"`
	Data    map[string][]any `bson:"data,omitempty" json:"data,omitempty"`
}

// Tx is the handle passed to a transaction closure. All writes performed
// through a Tx become visible atomically when the closure returns nil; if the
// closure returns an error nothing persists, including appended events.
type Tx interface {
	// Find returns the current record for id or ErrNotFound.
	Find(ctx context.Context, id string) (*Record, error)

	// Insert persists a new record. The id must not exist yet.
	Insert(ctx context.Context, rec *Record) error

	// Replace overwrites the record if its persisted version still equals
	// expectedVersion, otherwise it fails with ErrConflict.
	Replace(ctx context.Context, rec *Record, expectedVersion int) error

	// Delete removes the record or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// AppendEvent records a pending side effect within this transaction.
	AppendEvent(ctx context.Context, ev *Event) error
}

// Store is the transactional persistence boundary. Reads outside a
// transaction observe only committed state.
type Store interface {
	// WithinTx runs fn inside a transaction scope. The transaction commits
	// when fn returns nil and rolls back otherwise; the error of fn is
	// returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Find returns the committed record for id or ErrNotFound. The returned
	// record is a detached copy; the store never mutates it afterwards.
	Find(ctx context.Context, id string) (*Record, error)

	// IterateAll streams every committed record, used for index rebuilds.
	IterateAll(ctx context.Context, fn func(rec *Record) error) error

	// PollEvents returns up to max committed events for the given topics in
	// creation order.
	PollEvents(ctx context.Context, max int, topics ...string) ([]*Event, error)

	// DeleteEvent removes a processed event. Deleting a missing event is not
	// an error; redelivery makes this path reachable.
	DeleteEvent(ctx context.Context, id string) error

	// UpdateEvent replaces topic and data of an existing event, used by the
	// event-log lock mechanism. Returns ErrNotFound for a missing event.
	UpdateEvent(ctx context.Context, id, topic string, data map[string][]any) error
}

// CloneData deep-copies an attribute map. Values are scalars, so copying the
// slices is sufficient.
func CloneData(data map[string][]any) map[string][]any {
	if data == nil {
		return nil
	}
	out := make(map[string][]any, len(data))
	for k, v := range data {
		vals := make([]any, len(v))
		copy(vals, v)
		out[k] = vals
	}
	return out
}
