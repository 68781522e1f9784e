// Package handlers exposes the document store over HTTP using gin.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/internal/document/service"
	"github.com/docuvault/docuvault/internal/index"
)

// DocumentAPI serves the CRUD and search surface of the store.
type DocumentAPI struct {
	docs *service.Service
}

func NewDocumentAPI(docs *service.Service) *DocumentAPI {
	return &DocumentAPI{docs: docs}
}

// RegisterRoutes mounts the document endpoints on the given router group.
func (api *DocumentAPI) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/documents", api.Save)
	r.GET("/api/documents/:id", api.Get)
	r.PUT("/api/documents/:id", api.Update)
	r.DELETE("/api/documents/:id", api.Delete)
	r.GET("/api/documents/:id/children", api.Children)
	r.GET("/api/documents/:id/references", api.References)
	r.GET("/api/search", api.Search)
	r.GET("/api/count", api.Count)
	r.GET("/api/countpages", api.CountPages)
	r.GET("/api/types/:type", api.ByType)
}

// Save creates or updates a document from its attribute map.
func (api *DocumentAPI) Save(c *gin.Context) {
	doc, err := bindDocument(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := api.docs.Save(c.Request.Context(), PrincipalFromContext(c), doc)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved.Items())
}

// Update saves a document at the id given in the path. A mismatching id in
// the body is rejected.
func (api *DocumentAPI) Update(c *gin.Context) {
	doc, err := bindDocument(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if bodyID := doc.ID(); bodyID != "" && bodyID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body $uniqueid does not match path"})
		return
	}
	doc.SetItem(document.ItemUniqueID, id)
	saved, err := api.docs.Save(c.Request.Context(), PrincipalFromContext(c), doc)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved.Items())
}

// Get loads one document. Missing and unreadable documents are both 404.
func (api *DocumentAPI) Get(c *gin.Context) {
	doc, err := api.docs.Load(c.Request.Context(), PrincipalFromContext(c), c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, doc.Items())
}

// Delete removes a document.
func (api *DocumentAPI) Delete(c *gin.Context) {
	if err := api.docs.Remove(c.Request.Context(), PrincipalFromContext(c), c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search runs a query and returns full documents, or stubs when ?stubs=true.
func (api *DocumentAPI) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter"})
		return
	}
	opts := searchOptions(c)
	p := PrincipalFromContext(c)
	var (
		docs []*document.Document
		err  error
	)
	if c.Query("stubs") == "true" {
		docs, err = api.docs.FindStubs(c.Request.Context(), p, query, opts)
	} else {
		docs, err = api.docs.Find(c.Request.Context(), p, query, opts)
	}
	if err != nil {
		writeStoreError(c, err)
		return
	}
	out := make([]map[string][]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Items())
	}
	c.JSON(http.StatusOK, out)
}

// Count returns the total hits for a query.
func (api *DocumentAPI) Count(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter"})
		return
	}
	maxResult := intQuery(c, "maxResult", 0)
	total, err := api.docs.Count(c.Request.Context(), PrincipalFromContext(c), query, maxResult)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total})
}

// CountPages returns the page count for a query and page size.
func (api *DocumentAPI) CountPages(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter"})
		return
	}
	pageSize := intQuery(c, "pageSize", index.DefaultPageSize)
	pages, err := api.docs.CountPages(c.Request.Context(), PrincipalFromContext(c), query, pageSize)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

// Children returns the documents referencing the given id.
func (api *DocumentAPI) Children(c *gin.Context) {
	docs, err := api.docs.FindChildren(c.Request.Context(), PrincipalFromContext(c), c.Param("id"), searchOptions(c))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	out := make([]map[string][]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Items())
	}
	c.JSON(http.StatusOK, out)
}

// References resolves the targets a document points to.
func (api *DocumentAPI) References(c *gin.Context) {
	p := PrincipalFromContext(c)
	doc, err := api.docs.Load(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	refs, err := api.docs.References(c.Request.Context(), p, doc)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	out := make([]map[string][]any, 0, len(refs))
	for _, d := range refs {
		out = append(out, d.Items())
	}
	c.JSON(http.StatusOK, out)
}

// ByType lists readable documents of one type straight from the store.
func (api *DocumentAPI) ByType(c *gin.Context) {
	docs, err := api.docs.DocumentsByType(c.Request.Context(), PrincipalFromContext(c), c.Param("type"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	out := make([]map[string][]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Items())
	}
	c.JSON(http.StatusOK, out)
}

func searchOptions(c *gin.Context) index.Options {
	return index.Options{
		PageSize:        intQuery(c, "pageSize", 0),
		PageIndex:       intQuery(c, "pageIndex", 0),
		SortBy:          c.Query("sortBy"),
		SortReverse:     c.Query("sortReverse") == "true",
		DefaultOperator: index.Operator(c.Query("operator")),
	}
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// bindDocument decodes a JSON attribute map. Scalar values are wrapped into
// single-element lists and RFC3339 strings become timestamps, so a document
// round-trips through its JSON form.
func bindDocument(c *gin.Context) (*document.Document, error) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, err
	}
	items := make(map[string][]any, len(raw))
	for name, v := range raw {
		var vals []any
		if list, ok := v.([]any); ok {
			vals = list
		} else {
			vals = []any{v}
		}
		for i, e := range vals {
			if s, ok := e.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					vals[i] = t
				}
			}
		}
		items[name] = vals
	}
	return document.FromItems(items), nil
}

// writeStoreError maps the store error taxonomy onto HTTP status codes. No
// internal error detail crosses the boundary for unclassified failures.
func writeStoreError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case document.IsAccessDenied(err):
		status = http.StatusForbidden
	case document.IsConflict(err):
		status = http.StatusConflict
	case document.IsInvalidReference(err):
		status = http.StatusNotFound
	case document.IsQueryNotUnderstandable(err):
		status = http.StatusBadRequest
	case document.IsIndexUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	var se *document.Error
	if errors.As(err, &se) {
		if se.Code == document.CodeInvalidParameter {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"code": string(se.Code), "error": se.Message})
		return
	}
	c.JSON(status, gin.H{"error": "internal error"})
}
