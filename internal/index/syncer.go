package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/internal/eventlog"
	"github.com/docuvault/docuvault/pkg/logger"
	"github.com/docuvault/docuvault/pkg/metrics"
)

// FlushCount is the number of event-log entries processed per flush block.
const FlushCount = 16

// rebuildBatchSize bounds the index batch during a full rebuild.
const rebuildBatchSize = 100

// Syncer drains the event log into the index. It runs decoupled from the
// saving transaction: entries are only deleted after the index batch was
// applied, so a crash between apply and delete replays the entries, which is
// safe because application is idempotent.
type Syncer struct {
	store    store.Store
	log      *eventlog.Service
	writer   Writer
	interval time.Duration
	timeout  time.Duration

	mu sync.Mutex
}

// NewSyncer wires the worker. interval is the background poll period,
// timeout bounds a single flush block.
func NewSyncer(st store.Store, log *eventlog.Service, w Writer, interval, timeout time.Duration) *Syncer {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{store: st, log: log, writer: w, interval: interval, timeout: timeout}
}

// Flush drains the event log completely. Safe for concurrent callers; blocks
// run serialized. Search paths call Flush first so a search observes every
// save that committed before it.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		done, err := s.flushBlock(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// flushBlock processes up to FlushCount entries and reports whether the log
// is drained. On error the entries stay queued for the next attempt.
func (s *Syncer) flushBlock(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()

	// read one entry beyond the block to learn whether more remain
	events, err := s.log.Poll(ctx, FlushCount+1, eventlog.TopicIndexAdd, eventlog.TopicIndexRemove)
	if err != nil {
		return false, err
	}
	done := len(events) <= FlushCount
	if len(events) > FlushCount {
		events = events[:FlushCount]
	}
	if len(events) == 0 {
		return true, nil
	}

	// lock the block so the entries stay invisible to other consumers while
	// in flight; if this worker dies here the dead-lock release frees them
	for i, ev := range events {
		if err := s.log.Lock(ctx, ev); err != nil {
			s.unlockAll(ctx, events[:i])
			return false, err
		}
	}

	var updates []*store.Record
	var removals []string
	for _, ev := range events {
		switch strings.TrimSuffix(ev.Topic, eventlog.LockSuffix) {
		case eventlog.TopicIndexAdd:
			rec, err := s.store.Find(ctx, ev.Ref)
			if errors.Is(err, store.ErrNotFound) {
				// deleted after the entry was written, treat as removal
				removals = append(removals, ev.Ref)
				continue
			}
			if err != nil {
				s.unlockAll(ctx, events)
				return false, err
			}
			updates = append(updates, rec)
		case eventlog.TopicIndexRemove:
			removals = append(removals, ev.Ref)
		default:
			logger.Warnf("index: ignoring event %s with unknown topic %s", ev.ID, ev.Topic)
		}
	}

	if err := s.writer.Apply(ctx, updates, removals); err != nil {
		s.unlockAll(ctx, events)
		return false, err
	}

	// the batch is durable, now the entries can go
	for _, ev := range events {
		if err := s.log.Delete(ctx, ev.ID); err != nil {
			s.unlockAll(ctx, events)
			return false, err
		}
	}
	metrics.IndexFlushes.Inc()
	metrics.IndexFlushDuration.Observe(time.Since(start).Seconds())
	logger.Debugf("index: flushed %d entries (%d updates, %d removals)", len(events), len(updates), len(removals))
	return done, nil
}

// unlockAll returns entries to their plain topic after a failed block so the
// next flush sees them again. Entries already deleted are ignored.
func (s *Syncer) unlockAll(ctx context.Context, events []*store.Event) {
	for _, ev := range events {
		if err := s.log.Unlock(ctx, ev); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warnf("index: can not unlock event %s: %v", ev.ID, err)
		}
	}
}

// Run flushes on the configured interval until the context ends. Errors are
// logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Infof("index: sync worker started, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("index: sync worker stopped")
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				logger.Errorf("index: flush failed: %v", err)
			}
		}
	}
}

// Rebuild re-indexes every committed record. Used after index loss or a
// schema change. Pending event-log entries are flushed first so the rebuild
// does not race older queued effects.
func (s *Syncer) Rebuild(ctx context.Context) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	total := 0
	batch := make([]*store.Record, 0, rebuildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.Apply(ctx, batch, nil); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	err := s.store.IterateAll(ctx, func(rec *store.Record) error {
		if document.FromRecord(rec).NoIndex() {
			return nil
		}
		batch = append(batch, rec)
		if len(batch) == rebuildBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	logger.Infof("index: rebuild indexed %d documents", total)
	return total, nil
}
