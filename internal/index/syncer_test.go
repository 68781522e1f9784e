package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/internal/eventlog"
)

// fakeWriter records Apply calls and can fail on demand.
type fakeWriter struct {
	updates  [][]*store.Record
	removals [][]string
	fail     error
}

func (f *fakeWriter) Apply(ctx context.Context, updates []*store.Record, removals []string) error {
	if f.fail != nil {
		return f.fail
	}
	f.updates = append(f.updates, updates)
	f.removals = append(f.removals, removals)
	return nil
}

func saveWithEvent(t *testing.T, st store.Store, log *eventlog.Service, id, topic string) {
	t.Helper()
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if topic == eventlog.TopicIndexAdd {
			now := time.Now().UTC()
			if err := tx.Insert(ctx, &store.Record{
				ID: id, Type: "document", Version: 1, Created: now, Modified: now,
				Data: map[string][]any{"title": {"t"}},
			}); err != nil {
				return err
			}
		}
		_, err := log.Append(ctx, tx, topic, id, nil)
		return err
	}))
}

func TestFlushAppliesAndDeletesEntries(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	w := &fakeWriter{}
	sync := NewSyncer(st, log, w, 0, 0)
	ctx := context.Background()

	saveWithEvent(t, st, log, "a", eventlog.TopicIndexAdd)
	saveWithEvent(t, st, log, "b", eventlog.TopicIndexRemove)

	require.NoError(t, sync.Flush(ctx))

	require.Len(t, w.updates, 1)
	require.Len(t, w.updates[0], 1)
	require.Equal(t, "a", w.updates[0][0].ID)
	require.Equal(t, []string{"b"}, w.removals[0])

	events, err := log.Poll(ctx, 10, eventlog.TopicIndexAdd, eventlog.TopicIndexRemove)
	require.NoError(t, err)
	require.Empty(t, events)

	// no lock carcasses either
	locked, err := log.Poll(ctx, 10,
		eventlog.TopicIndexAdd+eventlog.LockSuffix, eventlog.TopicIndexRemove+eventlog.LockSuffix)
	require.NoError(t, err)
	require.Empty(t, locked)
}

func TestFlushSkipsEntriesLockedByAnotherConsumer(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	w := &fakeWriter{}
	sync := NewSyncer(st, log, w, 0, 0)
	ctx := context.Background()

	saveWithEvent(t, st, log, "a", eventlog.TopicIndexAdd)
	events, err := log.Poll(ctx, 10, eventlog.TopicIndexAdd)
	require.NoError(t, err)
	require.NoError(t, log.Lock(ctx, events[0]))

	// a locked entry belongs to someone else until the dead-lock release
	require.NoError(t, sync.Flush(ctx))
	require.Empty(t, w.updates)

	require.NoError(t, log.Unlock(ctx, events[0]))
	require.NoError(t, sync.Flush(ctx))
	require.Len(t, w.updates, 1)
	require.Equal(t, "a", w.updates[0][0].ID)
}

func TestFlushKeepsEntriesOnWriterError(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	w := &fakeWriter{fail: errors.New("index down")}
	sync := NewSyncer(st, log, w, 0, 0)
	ctx := context.Background()

	saveWithEvent(t, st, log, "a", eventlog.TopicIndexAdd)

	require.Error(t, sync.Flush(ctx))

	// still queued for the next attempt, unlocked again
	events, err := log.Poll(ctx, 10, eventlog.TopicIndexAdd)
	require.NoError(t, err)
	require.Len(t, events, 1)
	locked, err := log.Poll(ctx, 10, eventlog.TopicIndexAdd+eventlog.LockSuffix)
	require.NoError(t, err)
	require.Empty(t, locked)

	w.fail = nil
	require.NoError(t, sync.Flush(ctx))
	events, err = log.Poll(ctx, 10, eventlog.TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestFlushDrainsBeyondBlockSize(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	w := &fakeWriter{}
	sync := NewSyncer(st, log, w, 0, 0)
	ctx := context.Background()

	total := FlushCount*2 + 3
	for i := 0; i < total; i++ {
		saveWithEvent(t, st, log, uid(i), eventlog.TopicIndexAdd)
	}

	require.NoError(t, sync.Flush(ctx))

	applied := 0
	for _, block := range w.updates {
		require.LessOrEqual(t, len(block), FlushCount)
		applied += len(block)
	}
	require.Equal(t, total, applied)

	events, err := log.Poll(ctx, total, eventlog.TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestFlushAddOfDeletedDocumentBecomesRemoval(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	w := &fakeWriter{}
	sync := NewSyncer(st, log, w, 0, 0)
	ctx := context.Background()

	// the add entry outlives its document
	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := log.Append(ctx, tx, eventlog.TopicIndexAdd, "gone", nil)
		return err
	}))

	require.NoError(t, sync.Flush(ctx))
	require.Len(t, w.removals, 1)
	require.Equal(t, []string{"gone"}, w.removals[0])
	require.Empty(t, w.updates[0])
}

func TestRebuildSkipsNoIndexDocuments(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	w := &fakeWriter{}
	sync := NewSyncer(st, log, w, 0, 0)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Insert(ctx, &store.Record{
			ID: "visible", Type: "document", Version: 1, Created: now, Modified: now,
			Data: map[string][]any{},
		}); err != nil {
			return err
		}
		return tx.Insert(ctx, &store.Record{
			ID: "hidden", Type: "document", Version: 1, Created: now, Modified: now,
			Data: map[string][]any{document.ItemNoIndex: {true}},
		})
	}))

	total, err := sync.Rebuild(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, w.updates, 1)
	require.Equal(t, "visible", w.updates[0][0].ID)
}

func TestFlushAgainstRealIndex(t *testing.T) {
	st := store.NewMemoryStore()
	log := eventlog.NewService(st)
	idx := newTestIndex(t)
	sync := NewSyncer(st, log, idx, 0, 0)
	ctx := context.Background()

	saveWithEvent(t, st, log, "a", eventlog.TopicIndexAdd)
	require.NoError(t, sync.Flush(ctx))
	// flushing an empty log is a no-op
	require.NoError(t, sync.Flush(ctx))

	res, err := idx.Search(ctx, `$uniqueid:"a"`, access.Anonymous, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, res.IDs)
}

func uid(i int) string {
	const chars = "abcdefghij"
	return "doc-" + string(chars[i/10%10]) + string(chars[i%10])
}
