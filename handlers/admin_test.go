package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// memArchive is an in-memory stand-in for the object-storage archive.
type memArchive struct {
	objects map[string][]byte
}

func (a *memArchive) UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.objects[key] = raw
	return nil
}

func (a *memArchive) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	raw, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func TestAdminRequiresManagerRole(t *testing.T) {
	api := newTestAPI(t)

	for _, role := range []string{"", "reader", "editor"} {
		w := api.do(t, http.MethodPost, "/api/admin/index/flush", "anna", role, nil)
		require.Equal(t, http.StatusForbidden, w.Code, "role %q must be rejected", role)
	}

	w := api.do(t, http.MethodPost, "/api/admin/index/flush", "root", "manager", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminRebuild(t *testing.T) {
	api := newTestAPI(t)

	for _, title := range []string{"one", "two"} {
		w := api.do(t, http.MethodPost, "/api/documents", "anna", "editor",
			map[string]any{"title": title})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := api.do(t, http.MethodPost, "/api/admin/index/rebuild", "root", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decodeDoc(t, w)["indexed"])
}

func TestAdminEventLogListsPendingEntries(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/documents", "anna", "editor",
		map[string]any{"title": "queued"})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/admin/eventlog", "root", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)

	// after a flush the log is empty
	w = api.do(t, http.MethodPost, "/api/admin/index/flush", "root", "manager", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, http.MethodGet, "/api/admin/eventlog", "root", "manager", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Empty(t, events)
}

func TestAdminExportRestore(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/documents", "anna", "editor",
		map[string]any{"type": "invoice", "title": "exported"})
	require.Equal(t, http.StatusOK, w.Code)
	id := firstString(t, decodeDoc(t, w), "$uniqueid")

	w = api.do(t, http.MethodGet, "/api/admin/export?query=type:invoice", "root", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	dump := w.Body.String()
	require.Contains(t, dump, id)

	// wipe and restore from the dump
	w = api.do(t, http.MethodDelete, "/api/documents/"+id, "anna", "editor", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/restore", strings.NewReader(dump))
	req.Header.Set("X-Test-Sub", "root")
	req.Header.Set("X-Test-Roles", "manager")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), decodeDoc(t, rec)["restored"])
	require.Equal(t, float64(0), decodeDoc(t, rec)["failed"])

	w = api.do(t, http.MethodGet, "/api/documents/"+id, "anna", "editor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "exported", firstString(t, decodeDoc(t, w), "title"))
}

func TestAdminExportRequiresQuery(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/api/admin/export", "root", "manager", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminArchiveRoundtrip(t *testing.T) {
	arch := &memArchive{objects: map[string][]byte{}}
	api := newTestAPIWithArchive(t, arch)

	w := api.do(t, http.MethodPost, "/api/documents", "anna", "editor",
		map[string]any{"type": "invoice", "title": "archived"})
	require.Equal(t, http.StatusOK, w.Code)
	id := firstString(t, decodeDoc(t, w), "$uniqueid")

	w = api.do(t, http.MethodPost, "/api/admin/export-archive?query=type:invoice&key=dump.ndjson", "root", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decodeDoc(t, w)["exported"])
	require.Contains(t, arch.objects, "dump.ndjson")

	w = api.do(t, http.MethodDelete, "/api/documents/"+id, "anna", "editor", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodPost, "/api/admin/restore-archive?key=dump.ndjson", "root", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decodeDoc(t, w)["restored"])

	w = api.do(t, http.MethodGet, "/api/documents/"+id, "anna", "editor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "archived", firstString(t, decodeDoc(t, w), "title"))
}

func TestAdminArchiveUnavailableWithoutStorage(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/admin/export-archive?query=type:invoice", "root", "manager", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = api.do(t, http.MethodPost, "/api/admin/restore-archive?key=dump.ndjson", "root", "manager", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = api.do(t, http.MethodPost, "/api/admin/export-archive", "root", "manager", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
