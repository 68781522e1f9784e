package index

import (
	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/store"
)

// Writer is the slice of the index the sync worker depends on. It exists so
// the worker can be tested against a fake without a real bleve index.
type Writer interface {
	// Apply indexes the given records and removes the given ids in one
	// batch. Application is idempotent; records are keyed by id.
	Apply(ctx context.Context, updates []*store.Record, removals []string) error
}

// Index wraps a bleve index configured from the field schema.
type Index struct {
	idx    bleve.Index
	schema *Schema
	stored map[string]bool
}

// Open opens the index at path, creating it with the schema-derived mapping
// when it does not exist yet.
func Open(path string, schema *Schema) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildMapping(schema))
	}
	if err != nil {
		return nil, document.NewError(document.CodeIndexUnavailable, "can not open index", err)
	}
	return newIndex(idx, schema), nil
}

// OpenInMemory creates a volatile index, used by tests and by deployments
// that rebuild on startup.
func OpenInMemory(schema *Schema) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping(schema))
	if err != nil {
		return nil, document.NewError(document.CodeIndexUnavailable, "can not create index", err)
	}
	return newIndex(idx, schema), nil
}

func newIndex(idx bleve.Index, schema *Schema) *Index {
	stored := map[string]bool{}
	for _, f := range schema.FieldListStore() {
		stored[f] = true
	}
	return &Index{idx: idx, schema: schema, stored: stored}
}

// Close releases the underlying index.
func (x *Index) Close() error {
	return x.idx.Close()
}

// buildMapping derives the bleve mapping from the schema: analyzed fields use
// the standard analyzer, no-analyze fields the keyword analyzer, and fields
// of the store list keep their value retrievable. The catch-all content field
// receives the full-text items. $uniqueid and $readaccess are always present
// as exact keyword fields.
func buildMapping(schema *Schema) mapping.IndexMapping {
	stored := map[string]bool{}
	for _, f := range schema.FieldListStore() {
		stored[f] = true
	}

	text := func(analyzer string, store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = analyzer
		fm.Store = store
		fm.IncludeInAll = false
		// phrase queries need term vectors; the access filter relies on
		// quoted principal names, so every field keeps them
		fm.IncludeTermVectors = true
		return fm
	}

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(ContentField, text(standard.Name, false))
	doc.AddFieldMappingsAt(document.ItemUniqueID, text(keyword.Name, true))
	doc.AddFieldMappingsAt(document.ItemReadAccess, text(keyword.Name, false))
	for _, f := range schema.FieldListAnalyze() {
		doc.AddFieldMappingsAt(f, text(standard.Name, stored[f]))
	}
	for _, f := range schema.FieldListNoAnalyze() {
		doc.AddFieldMappingsAt(f, text(keyword.Name, stored[f]))
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Apply indexes updates and removals in one batch.
func (x *Index) Apply(ctx context.Context, updates []*store.Record, removals []string) error {
	batch := x.idx.NewBatch()
	for _, rec := range updates {
		if err := batch.Index(rec.ID, x.indexDoc(rec)); err != nil {
			return document.NewError(document.CodeIndexUnavailable, "can not index document "+rec.ID, err)
		}
	}
	for _, id := range removals {
		batch.Delete(id)
	}
	if err := x.idx.Batch(batch); err != nil {
		return document.NewError(document.CodeIndexUnavailable, "can not write index batch", err)
	}
	return nil
}

// indexDoc flattens a record into the field map handed to bleve. All values
// are rendered as strings; dates use the compact sortable layout. The read
// ACL always carries at least the anonymous sentinel so public documents are
// matchable by the access filter.
func (x *Index) indexDoc(rec *store.Record) map[string]any {
	d := document.FromRecord(rec)
	out := map[string]any{
		document.ItemUniqueID: rec.ID,
	}

	readAccess := []string{}
	for _, entry := range d.ReadAccess() {
		if entry != "" {
			readAccess = append(readAccess, entry)
		}
	}
	if access.IsEmptyList(readAccess) {
		readAccess = []string{Anonymous}
	}
	out[document.ItemReadAccess] = readAccess

	var content []string
	for _, f := range x.schema.FieldList() {
		content = append(content, d.GetStringList(f)...)
	}
	out[ContentField] = content

	for _, lists := range [][]string{x.schema.FieldListAnalyze(), x.schema.FieldListNoAnalyze()} {
		for _, f := range lists {
			if d.HasItem(f) {
				out[f] = d.GetStringList(f)
			}
		}
	}
	return out
}
