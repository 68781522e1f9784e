// Package eventlog manages the durable queue of pending side effects written
// transactionally alongside document mutations.
package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/pkg/logger"
)

// Topics of the index synchronization effects.
const (
	TopicIndexAdd    = "index.add"
	TopicIndexRemove = "index.remove"
)

// LockSuffix is appended to a topic while a consumer processes the entry, so
// a locked entry is invisible to plain topic polls.
const LockSuffix = ".lock"

// lockDateItem stamps a locked entry; ReleaseDeadLocks uses it to detect
// consumers that died while holding a lock.
const lockDateItem = "eventlog.lock.date"

// Service creates and consumes event-log entries. Appends happen inside the
// caller's transaction; polls and deletes run in the consumer's own scope.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Append records a new entry within the given transaction. The entry becomes
// a fact only when the surrounding transaction commits.
func (s *Service) Append(ctx context.Context, tx store.Tx, topic, ref string, data map[string][]any) (*store.Event, error) {
	if ref == "" {
		logger.Warnf("eventlog: append skipped - empty ref for topic %s", topic)
		return nil, nil
	}
	ev := &store.Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Ref:     ref,
		Created: time.Now().UTC(),
		Data:    data,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Poll returns up to max committed entries for the given topics in creation
// order. Delivery is at least once: a crashed consumer sees the same entries
// again on the next poll.
func (s *Service) Poll(ctx context.Context, max int, topics ...string) ([]*store.Event, error) {
	return s.store.PollEvents(ctx, max, topics...)
}

// Delete removes an entry after its effect has been durably applied.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteEvent(ctx, id)
}

// Lock marks an entry as taken by suffixing its topic. A locked entry no
// longer shows up in polls for the plain topic.
func (s *Service) Lock(ctx context.Context, ev *store.Event) error {
	data := store.CloneData(ev.Data)
	if data == nil {
		data = map[string][]any{}
	}
	data[lockDateItem] = []any{time.Now().UTC()}
	if err := s.store.UpdateEvent(ctx, ev.ID, ev.Topic+LockSuffix, data); err != nil {
		return err
	}
	ev.Topic = ev.Topic + LockSuffix
	ev.Data = data
	return nil
}

// Unlock removes the lock suffix and the lock stamp.
func (s *Service) Unlock(ctx context.Context, ev *store.Event) error {
	topic := ev.Topic
	if n := len(topic) - len(LockSuffix); n > 0 && topic[n:] == LockSuffix {
		topic = topic[:n]
	}
	data := store.CloneData(ev.Data)
	delete(data, lockDateItem)
	if err := s.store.UpdateEvent(ctx, ev.ID, topic, data); err != nil {
		return err
	}
	ev.Topic = topic
	ev.Data = data
	return nil
}

// ReleaseDeadLocks unlocks entries whose lock is older than the given
// interval. Such entries belong to consumers that died mid-flight.
func (s *Service) ReleaseDeadLocks(ctx context.Context, deadLockInterval time.Duration, topics ...string) error {
	locked := make([]string, len(topics))
	for i, t := range topics {
		locked[i] = t + LockSuffix
	}
	events, err := s.store.PollEvents(ctx, 100, locked...)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, ev := range events {
		stamp, ok := lockDate(ev)
		if !ok {
			logger.Warnf("eventlog: locked entry %s has no lock date, deleting", ev.ID)
			if err := s.store.DeleteEvent(ctx, ev.ID); err != nil {
				return err
			}
			continue
		}
		if age := now.Sub(stamp); age > deadLockInterval {
			logger.Warnf("eventlog: deadlock detected, unlocking entry %s (locked for %s)", ev.ID, age)
			if err := s.Unlock(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func lockDate(ev *store.Event) (time.Time, bool) {
	vals := ev.Data[lockDateItem]
	if len(vals) == 0 {
		return time.Time{}, false
	}
	t, ok := vals[0].(time.Time)
	return t, ok
}
