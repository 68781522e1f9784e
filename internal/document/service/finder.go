package service

import (
	"context"
	"fmt"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/internal/index"
	"github.com/docuvault/docuvault/pkg/logger"
	"github.com/docuvault/docuvault/pkg/metrics"
)

// Find runs a query against the index and loads each hit. The event log is
// flushed first, so every save committed before the call is visible. The
// index pre-filters by the caller's read access; the per-document load
// re-check remains the authority, hits it rejects are dropped.
func (s *Service) Find(ctx context.Context, p access.Principal, query string, opts index.Options) ([]*document.Document, error) {
	opts.Stubs = false
	res, err := s.search(ctx, p, query, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*document.Document, 0, len(res.IDs))
	for _, id := range res.IDs {
		doc, err := s.Load(ctx, p, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			// removed since indexing, or the index ACL copy is stale
			logger.Warnf("document: dropping unreadable search hit %s", id)
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// FindStubs runs a query and returns partial documents built from the stored
// index fields, skipping the per-hit store reads.
func (s *Service) FindStubs(ctx context.Context, p access.Principal, query string, opts index.Options) ([]*document.Document, error) {
	opts.Stubs = true
	res, err := s.search(ctx, p, query, opts)
	if err != nil {
		return nil, err
	}
	return res.Stubs, nil
}

func (s *Service) search(ctx context.Context, p access.Principal, query string, opts index.Options) (*index.Result, error) {
	if err := s.syncer.Flush(ctx); err != nil {
		return nil, err
	}
	metrics.SearchQueries.Inc()
	return s.idx.Search(ctx, query, p, opts)
}

// Count returns the total hits for a query, capped at maxResult when
// positive, without materializing documents.
func (s *Service) Count(ctx context.Context, p access.Principal, query string, maxResult int) (int, error) {
	if err := s.syncer.Flush(ctx); err != nil {
		return 0, err
	}
	return s.idx.TotalHits(ctx, query, p, maxResult)
}

// CountPages returns the number of pages needed to iterate a query result.
func (s *Service) CountPages(ctx context.Context, p access.Principal, query string, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = index.DefaultPageSize
	}
	total, err := s.Count(ctx, p, query, 0)
	if err != nil {
		return 0, err
	}
	return (total + pageSize - 1) / pageSize, nil
}

// FindChildren returns the documents referencing parentID through their
// $uniqueidref item.
func (s *Service) FindChildren(ctx context.Context, p access.Principal, parentID string, opts index.Options) ([]*document.Document, error) {
	if parentID == "" {
		return nil, document.NewError(document.CodeInvalidParameter, "findChildren - missing parent id", nil)
	}
	term := fmt.Sprintf("(%s:\"%s\")", document.ItemUniqueIDRef, parentID)
	return s.Find(ctx, p, term, opts)
}

// References loads the documents a given document points to through its
// $uniqueidref item. Unreadable or missing targets are skipped.
func (s *Service) References(ctx context.Context, p access.Principal, doc *document.Document) ([]*document.Document, error) {
	var out []*document.Document
	for _, ref := range doc.GetStringList(document.ItemUniqueIDRef) {
		target, err := s.Load(ctx, p, ref)
		if err != nil {
			return nil, err
		}
		if target != nil {
			out = append(out, target)
		}
	}
	return out, nil
}

// DocumentsByType scans the committed store for documents of the given type
// the caller may read. This bypasses the index, so it also finds documents
// flagged noindex.
func (s *Service) DocumentsByType(ctx context.Context, p access.Principal, docType string) ([]*document.Document, error) {
	var out []*document.Document
	err := s.store.IterateAll(ctx, func(rec *store.Record) error {
		if rec.Type != docType {
			return nil
		}
		doc := document.FromRecord(rec)
		if !access.CanRead(doc.ReadAccess(), p) {
			return nil
		}
		doc.SetItem(document.ItemIsAuthor, access.CanWrite(doc.WriteAccess(), p))
		out = append(out, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
