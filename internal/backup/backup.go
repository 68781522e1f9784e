// Package backup implements bulk export and restore of documents as a
// JSON-lines stream, optionally archived to object storage.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/service"
	"github.com/docuvault/docuvault/internal/index"
	"github.com/docuvault/docuvault/pkg/logger"
)

// chunkSize is the page size used when walking the export query.
const chunkSize = 100

// ErrNoArchive is returned by the archive operations when no object storage
// was configured.
var ErrNoArchive = errors.New("no archive storage configured")

// Archive is the slice of object storage the backup service writes dumps to.
// *storage.MinIOStorage satisfies it.
type Archive interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// Service streams documents out of and back into the store.
type Service struct {
	docs    *service.Service
	archive Archive
}

// New wires the backup service. archive may be nil when no object storage is
// configured; Export and Restore over plain readers and writers still work.
func New(docs *service.Service, archive Archive) *Service {
	return &Service{docs: docs, archive: archive}
}

// HasArchive reports whether an archive target was configured.
func (s *Service) HasArchive() bool {
	return s.archive != nil
}

// Export writes the attribute map of every document matching the query to w,
// one JSON object per line, and returns the number of exported documents.
// The query runs with the caller's access filter, so an export never
// contains documents the caller cannot read. Paging walks the index-level
// page count: a page the per-document re-check shrinks must not end the walk
// while later pages still hold matches.
func (s *Service) Export(ctx context.Context, p access.Principal, query string, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	pages, err := s.docs.CountPages(ctx, p, query, chunkSize)
	if err != nil {
		return 0, err
	}
	total := 0
	for page := 0; page < pages; page++ {
		docs, err := s.docs.Find(ctx, p, query, index.Options{
			PageSize:  chunkSize,
			PageIndex: page,
			SortBy:    document.ItemUniqueID,
		})
		if err != nil {
			return total, err
		}
		for _, doc := range docs {
			if err := enc.Encode(doc.Items()); err != nil {
				return total, err
			}
			total++
		}
	}
	logger.Infof("backup: exported %d documents for query %q", total, query)
	return total, nil
}

// Restore reads a JSON-lines stream and saves each record. The $version item
// is dropped so the store treats every record as append-or-update without
// optimistic-lock failures. Per-record errors are counted and logged, the
// restore never aborts on them.
func (s *Service) Restore(ctx context.Context, p access.Principal, r io.Reader) (restored, failed int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		items, derr := decodeItems(raw)
		if derr != nil {
			failed++
			logger.Errorf("backup: line %d not readable: %v", line, derr)
			continue
		}
		doc := document.FromItems(items)
		doc.RemoveItem(document.ItemVersion)
		if _, serr := s.docs.Save(ctx, p, doc); serr != nil {
			failed++
			logger.Errorf("backup: can not restore %s: %v", doc.ID(), serr)
			continue
		}
		restored++
	}
	if serr := scanner.Err(); serr != nil {
		return restored, failed, serr
	}
	logger.Infof("backup: restored %d documents, %d failures", restored, failed)
	return restored, failed, nil
}

// decodeItems parses one exported line back into an attribute map,
// recovering timestamps that JSON flattened to strings.
func decodeItems(raw []byte) (map[string][]any, error) {
	var items map[string][]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	for name, vals := range items {
		for i, v := range vals {
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					vals[i] = t
				}
			}
		}
		items[name] = vals
	}
	return items, nil
}

// ExportToArchive exports the query result and uploads it as one object.
func (s *Service) ExportToArchive(ctx context.Context, p access.Principal, query, key string) (int, error) {
	if s.archive == nil {
		return 0, ErrNoArchive
	}
	var buf bytes.Buffer
	total, err := s.Export(ctx, p, query, &buf)
	if err != nil {
		return total, err
	}
	if err := s.archive.UploadFile(ctx, key, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return total, err
	}
	return total, nil
}

// RestoreFromArchive downloads an archived export and restores it.
func (s *Service) RestoreFromArchive(ctx context.Context, p access.Principal, key string) (restored, failed int, err error) {
	if s.archive == nil {
		return 0, 0, ErrNoArchive
	}
	obj, err := s.archive.DownloadFile(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	defer obj.Close()
	return s.Restore(ctx, p, obj)
}
