package index

import (
	"context"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/pkg/logger"
)

const (
	// DefaultPageSize applies when a search gives no page size.
	DefaultPageSize = 100

	// MaxSearchResult caps the result window of a single search. The window
	// widens when the requested page lies beyond it.
	MaxSearchResult = 9999
)

// Options controls pagination, sorting and result shape of a search.
type Options struct {
	PageSize    int
	PageIndex   int
	SortBy      string
	SortReverse bool

	// DefaultOperator joins adjacent query terms; empty means AND.
	DefaultOperator Operator

	// Stubs requests partial documents built from the stored index fields
	// instead of plain id lists.
	Stubs bool
}

// Result of an index search. IDs always holds the matching document ids in
// result order; Stubs is filled only when requested.
type Result struct {
	Total uint64
	IDs   []string
	Stubs []*document.Document
}

// Search runs the term against the index on behalf of the principal. The
// term is extended with the caller's read-access filter first, so the index
// never surfaces ids the caller cannot read; per-document loads remain the
// final authority.
func (x *Index) Search(ctx context.Context, term string, p access.Principal, opts Options) (*Result, error) {
	extended := x.schema.ExtendedSearchTerm(term, p)
	if extended == "" {
		return &Result{}, nil
	}
	defaultOp := opts.DefaultOperator
	if defaultOp == "" {
		defaultOp = OperatorAnd
	}
	q, err := ParseQuery(extended, defaultOp)
	if err != nil {
		return nil, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageIndex := opts.PageIndex
	if pageIndex < 0 {
		pageIndex = 0
	}
	// the result window normally ends at MaxSearchResult but follows the
	// caller when a page lies beyond it
	maxResult := MaxSearchResult
	if pageSize*(pageIndex+1) > maxResult {
		maxResult = pageSize * (pageIndex + 1)
	}
	offset := pageSize * pageIndex
	size := maxResult - offset
	if size > pageSize {
		size = pageSize
	}

	req := bleve.NewSearchRequestOptions(q, size, offset, false)
	if opts.Stubs {
		req.Fields = append([]string{}, x.schema.FieldListStore()...)
	}
	if opts.SortBy != "" {
		sort := opts.SortBy
		if opts.SortReverse {
			sort = "-" + sort
		}
		req.SortBy([]string{sort})
	}

	logger.Debugf("index: search term=%q page=%d/%d", extended, pageIndex, pageSize)
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, document.NewError(document.CodeIndexUnavailable, "search failed", err)
	}

	out := &Result{Total: res.Total}
	for _, hit := range res.Hits {
		out.IDs = append(out.IDs, hit.ID)
		if opts.Stubs {
			out.Stubs = append(out.Stubs, stubDocument(hit.ID, hit.Fields))
		}
	}
	return out, nil
}

// TotalHits counts the documents matching the term for the principal,
// capped at maxResult when positive.
func (x *Index) TotalHits(ctx context.Context, term string, p access.Principal, maxResult int) (int, error) {
	extended := x.schema.ExtendedSearchTerm(term, p)
	if extended == "" {
		return 0, nil
	}
	q, err := ParseQuery(extended, OperatorAnd)
	if err != nil {
		return 0, err
	}
	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return 0, document.NewError(document.CodeIndexUnavailable, "count failed", err)
	}
	total := int(res.Total)
	if maxResult > 0 && total > maxResult {
		total = maxResult
	}
	return total, nil
}

// stubDocument rebuilds a partial document from the stored index fields. A
// stub is limited to the store list; 14-digit date strings are converted
// back into timestamps.
func stubDocument(id string, fields map[string]any) *document.Document {
	d := document.New()
	d.SetItem(document.ItemUniqueID, id)
	for name, v := range fields {
		switch vals := v.(type) {
		case []any:
			items := make([]any, 0, len(vals))
			for _, e := range vals {
				items = append(items, stubValue(e))
			}
			d.SetItem(name, items...)
		default:
			d.SetItem(name, stubValue(v))
		}
	}
	return d
}

func stubValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if len(s) == len(document.IndexDateFormat) {
		if t, err := time.Parse(document.IndexDateFormat, s); err == nil {
			return t
		}
	}
	return s
}
