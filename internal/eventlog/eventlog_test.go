package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/internal/document/store"
)

func TestAppendIsTransactional(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()

	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := log.Append(ctx, tx, TopicIndexAdd, "doc-1", nil)
		require.NoError(t, err)
		require.NotEmpty(t, ev.ID)
		return nil
	}))

	events, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "doc-1", events[0].Ref)
}

func TestAppendRolledBack(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := log.Append(ctx, tx, TopicIndexAdd, "doc-1", nil)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	events, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestAppendSkipsEmptyRef(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()

	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := log.Append(ctx, tx, TopicIndexAdd, "", nil)
		require.NoError(t, err)
		require.Nil(t, ev)
		return nil
	}))

	events, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLockHidesEntry(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()

	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := log.Append(ctx, tx, TopicIndexAdd, "doc-1", nil)
		return err
	}))

	events, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, log.Lock(ctx, events[0]))
	require.Equal(t, TopicIndexAdd+LockSuffix, events[0].Topic)

	hidden, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, hidden)

	require.NoError(t, log.Unlock(ctx, events[0]))
	require.Equal(t, TopicIndexAdd, events[0].Topic)

	visible, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.NotContains(t, visible[0].Data, lockDateItem)
}

func TestReleaseDeadLocks(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()

	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := log.Append(ctx, tx, TopicIndexAdd, "stale", nil)
		return err
	}))
	events, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.NoError(t, log.Lock(ctx, events[0]))

	// backdate the lock stamp past the deadlock interval
	data := store.CloneData(events[0].Data)
	data[lockDateItem] = []any{time.Now().Add(-10 * time.Minute)}
	require.NoError(t, st.UpdateEvent(ctx, events[0].ID, events[0].Topic, data))

	require.NoError(t, log.ReleaseDeadLocks(ctx, time.Minute, TopicIndexAdd))

	visible, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "stale", visible[0].Ref)
}

func TestReleaseDeadLocksKeepsFreshLocks(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()

	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := log.Append(ctx, tx, TopicIndexAdd, "fresh", nil)
		return err
	}))
	events, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.NoError(t, log.Lock(ctx, events[0]))

	require.NoError(t, log.ReleaseDeadLocks(ctx, time.Minute, TopicIndexAdd))

	visible, err := log.Poll(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, visible)
}

func TestReleaseDeadLocksDropsStamplessEntries(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewService(st)
	ctx := context.Background()

	// a locked entry without a lock stamp is unrecoverable
	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEvent(ctx, &store.Event{
			ID:      "broken",
			Topic:   TopicIndexAdd + LockSuffix,
			Ref:     "doc-1",
			Created: time.Now(),
		})
	}))

	require.NoError(t, log.ReleaseDeadLocks(ctx, time.Minute, TopicIndexAdd))

	locked, err := st.PollEvents(ctx, 10, TopicIndexAdd+LockSuffix)
	require.NoError(t, err)
	require.Empty(t, locked)
	plain, err := st.PollEvents(ctx, 10, TopicIndexAdd)
	require.NoError(t, err)
	require.Empty(t, plain)
}
