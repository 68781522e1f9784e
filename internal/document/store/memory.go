package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store used for unit tests and for
// running without a MongoDB connection. Transactions are serialized: the
// closure runs under the store lock against a staged overlay which is merged
// into the base state only when the closure succeeds.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]*Record
	events map[string]*Event
	seq    int64
	order  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   map[string]*Record{},
		events: map[string]*Event{},
		order:  map[string]int64{},
	}
}

type memTx struct {
	s *MemoryStore

	// staged changes, applied on commit
	upserts map[string]*Record
	deletes map[string]bool
	appends []*Event
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:       s,
		upserts: map[string]*Record{},
		deletes: map[string]bool{},
	}
	if err := fn(ctx, tx); err != nil {
		// rollback: discard the overlay, nothing persists
		return err
	}
	for id := range tx.deletes {
		delete(s.docs, id)
	}
	for id, rec := range tx.upserts {
		s.docs[id] = cloneRecord(rec)
	}
	for _, ev := range tx.appends {
		s.seq++
		s.events[ev.ID] = cloneEvent(ev)
		s.order[ev.ID] = s.seq
	}
	return nil
}

func (t *memTx) Find(ctx context.Context, id string) (*Record, error) {
	if t.deletes[id] {
		return nil, ErrNotFound
	}
	if rec, ok := t.upserts[id]; ok {
		return cloneRecord(rec), nil
	}
	rec, ok := t.s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (t *memTx) Insert(ctx context.Context, rec *Record) error {
	if _, err := t.Find(ctx, rec.ID); err == nil {
		return ErrConflict
	}
	delete(t.deletes, rec.ID)
	t.upserts[rec.ID] = cloneRecord(rec)
	return nil
}

func (t *memTx) Replace(ctx context.Context, rec *Record, expectedVersion int) error {
	cur, err := t.Find(ctx, rec.ID)
	if err != nil {
		return err
	}
	// CAS against the version this transaction sees; the store lock is held
	// for the whole transaction, so nothing can interleave before commit
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	t.upserts[rec.ID] = cloneRecord(rec)
	return nil
}

func (t *memTx) Delete(ctx context.Context, id string) error {
	if _, err := t.Find(ctx, id); err != nil {
		return err
	}
	delete(t.upserts, id)
	t.deletes[id] = true
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, ev *Event) error {
	t.appends = append(t.appends, ev)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) IterateAll(ctx context.Context, fn func(rec *Record) error) error {
	s.mu.Lock()
	recs := make([]*Record, 0, len(s.docs))
	for _, rec := range s.docs {
		recs = append(recs, cloneRecord(rec))
	}
	s.mu.Unlock()
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) PollEvents(ctx context.Context, max int, topics ...string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, t := range topics {
		if t != "" {
			want[t] = true
		}
	}
	out := []*Event{}
	for _, ev := range s.events {
		if want[ev.Topic] {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].ID] < s.order[out[j].ID]
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	delete(s.order, id)
	return nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, id, topic string, data map[string][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	ev.Topic = topic
	ev.Data = CloneData(data)
	return nil
}

func cloneRecord(rec *Record) *Record {
	c := *rec
	c.Data = CloneData(rec.Data)
	return &c
}

func cloneEvent(ev *Event) *Event {
	c := *ev
	c.Data = CloneData(ev.Data)
	return &c
}
