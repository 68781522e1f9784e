// Package service implements the secured document store: ACL-checked CRUD
// over versioned attribute-bag documents with transactional event-log
// enqueueing for the search index.
package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/internal/eventlog"
	"github.com/docuvault/docuvault/internal/index"
	"github.com/docuvault/docuvault/pkg/logger"
	"github.com/docuvault/docuvault/pkg/metrics"
)

// Accepted shapes of a caller-supplied unique id: a lowercase UUID,
// optionally with a millisecond suffix, or a legacy hex-prefixed id.
var (
	uidPattern       = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}(-[0-9]{13,15})?$`)
	legacyUIDPattern = regexp.MustCompile(`^[0-9a-f]{8,11}-.+$`)
)

// IsValidUID reports whether a caller-supplied unique id is acceptable.
func IsValidUID(id string) bool {
	return uidPattern.MatchString(id) || legacyUIDPattern.MatchString(id)
}

// Service is the document store boundary. Every operation receives the
// caller's principal explicitly; there is no ambient security context.
type Service struct {
	store  store.Store
	log    *eventlog.Service
	idx    *index.Index
	syncer *index.Syncer
	cache  *Cache
}

// New wires the service. The index and syncer may be shared with the
// background worker; cache is optional.
func New(st store.Store, log *eventlog.Service, idx *index.Index, syncer *index.Syncer, cache *Cache) *Service {
	return &Service{store: st, log: log, idx: idx, syncer: syncer, cache: cache}
}

// Save persists a document. An empty id means creation and requires one of
// the manager, editor or author roles; a supplied id that does not resolve to
// a stored record creates the record at that id under the same rule. Updates
// require both read and write access on the stored record and respect the
// optimistic version check when the caller supplies $version. The matching
// index effect is appended to the event log inside the same transaction.
// The returned document carries the assigned $uniqueid, $version, $created,
// $modified and $isauthor items.
func (s *Service) Save(ctx context.Context, p access.Principal, doc *document.Document) (*document.Document, error) {
	id := doc.ID()
	if id != "" && !IsValidUID(id) {
		return nil, document.NewError(document.CodeInvalidParameter, "invalid unique id pattern - "+id, nil)
	}

	saved := doc.Clone()
	saved.RemoveItem(document.ItemIsAuthor)
	if saved.Type() == "" {
		saved.SetItem(document.ItemType, document.DefaultType)
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		var existing *store.Record
		if id != "" {
			rec, err := tx.Find(ctx, id)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			existing = rec
		}

		if existing == nil {
			if !access.CanCreate(p) {
				metrics.AccessDenials.WithLabelValues("save").Inc()
				return document.AccessDeniedError("save")
			}
			if id == "" {
				id = uuid.NewString()
				saved.SetItem(document.ItemUniqueID, id)
			}
			// a provided creation date is kept, everything else starts now
			created := saved.GetTime(document.ItemCreated)
			if created.IsZero() {
				created = now
			}
			saved.SetItem(document.ItemCreated, created)
			saved.SetItem(document.ItemModified, created)
			saved.SetItem(document.ItemVersion, 1)
			rec := document.ToRecord(saved)
			if err := tx.Insert(ctx, rec); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return document.NewError(document.CodeConflict, "document "+id+" was created concurrently", err)
				}
				return err
			}
		} else {
			stored := document.FromRecord(existing)
			if !access.CanRead(stored.ReadAccess(), p) || !access.CanWrite(stored.WriteAccess(), p) {
				metrics.AccessDenials.WithLabelValues("save").Inc()
				return document.AccessDeniedError("save")
			}
			if stored.Immutable() {
				return document.AccessDeniedError("save")
			}
			// the caller's $version participates in the optimistic check;
			// without one the current version wins
			expected := doc.Version()
			if expected <= 0 {
				expected = existing.Version
			}
			saved.SetItem(document.ItemCreated, existing.Created)
			saved.SetItem(document.ItemModified, now)
			saved.SetItem(document.ItemVersion, expected+1)
			rec := document.ToRecord(saved)
			if err := tx.Replace(ctx, rec, expected); err != nil {
				if errors.Is(err, store.ErrConflict) {
					metrics.LockConflicts.Inc()
					return document.NewError(document.CodeConflict,
						"document "+id+" was modified by another writer", err)
				}
				return err
			}
		}

		// same transaction as the mutation, so a rollback drops the entry
		topic := eventlog.TopicIndexAdd
		if saved.NoIndex() {
			topic = eventlog.TopicIndexRemove
		}
		_, err := s.log.Append(ctx, tx, topic, id, nil)
		return err
	})
	if err != nil {
		metrics.DocumentSaves.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.DocumentSaves.WithLabelValues("ok").Inc()

	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	saved.SetItem(document.ItemIsAuthor, access.CanWrite(saved.WriteAccess(), p))
	return saved, nil
}

// Load fetches a document by id and applies the read ACL. A missing document
// and a denied document both return nil so callers cannot probe for the
// existence of records they may not read.
func (s *Service) Load(ctx context.Context, p access.Principal, id string) (*document.Document, error) {
	if id == "" {
		return nil, nil
	}
	metrics.DocumentLoads.Inc()

	rec, cached := s.cachedRecord(ctx, id)
	if rec == nil && !cached {
		var err error
		rec, err = s.store.Find(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, rec)
		}
	}
	if rec == nil {
		return nil, nil
	}

	doc := document.FromRecord(rec)
	if !access.CanRead(doc.ReadAccess(), p) {
		return nil, nil
	}
	doc.SetItem(document.ItemIsAuthor, access.CanWrite(doc.WriteAccess(), p))
	return doc, nil
}

// cachedRecord consults the optional cache. The second return reports a
// definitive cached "not found".
func (s *Service) cachedRecord(ctx context.Context, id string) (*store.Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, id)
}

// Remove deletes a document. A missing id is an invalid reference; a present
// one requires both read and write access. The index removal is enqueued in
// the same transaction; for documents flagged noindex it is a cheap no-op at
// flush time, so every successful remove carries exactly one entry.
func (s *Service) Remove(ctx context.Context, p access.Principal, id string) error {
	if id == "" {
		return document.NewError(document.CodeInvalidReference, "remove - invalid $uniqueid", nil)
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.Find(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return document.NewError(document.CodeInvalidReference, "remove - invalid $uniqueid", err)
		}
		if err != nil {
			return err
		}
		doc := document.FromRecord(rec)
		if !access.CanRead(doc.ReadAccess(), p) || !access.CanWrite(doc.WriteAccess(), p) {
			metrics.AccessDenials.WithLabelValues("remove").Inc()
			return document.AccessDeniedError("remove")
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, eventlog.TopicIndexRemove, id, nil)
		return err
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	logger.Debugf("document: removed %s", id)
	return nil
}
