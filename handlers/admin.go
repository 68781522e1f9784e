package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/backup"
	"github.com/docuvault/docuvault/internal/eventlog"
	"github.com/docuvault/docuvault/internal/index"
)

// AdminAPI exposes the operational endpoints: index maintenance, event-log
// inspection and bulk backup/restore. All routes require the manager role.
type AdminAPI struct {
	syncer *index.Syncer
	log    *eventlog.Service
	backup *backup.Service
}

func NewAdminAPI(syncer *index.Syncer, log *eventlog.Service, bak *backup.Service) *AdminAPI {
	return &AdminAPI{syncer: syncer, log: log, backup: bak}
}

// RegisterRoutes mounts the admin endpoints on the given router group.
func (api *AdminAPI) RegisterRoutes(r gin.IRouter) {
	grp := r.Group("/api/admin", api.requireManager)
	grp.POST("/index/flush", api.Flush)
	grp.POST("/index/rebuild", api.Rebuild)
	grp.GET("/eventlog", api.EventLog)
	grp.GET("/export", api.Export)
	grp.POST("/restore", api.Restore)
	grp.POST("/export-archive", api.ExportArchive)
	grp.POST("/restore-archive", api.RestoreArchive)
}

func (api *AdminAPI) requireManager(c *gin.Context) {
	p := PrincipalFromContext(c)
	if !p.HasRole(access.RoleManager) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "manager role required"})
		return
	}
	c.Next()
}

// Flush drains the event log into the index.
func (api *AdminAPI) Flush(c *gin.Context) {
	if err := api.syncer.Flush(c.Request.Context()); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Rebuild re-indexes every committed document.
func (api *AdminAPI) Rebuild(c *gin.Context) {
	total, err := api.syncer.Rebuild(c.Request.Context())
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexed": total})
}

// EventLog lists pending entries, including locked ones.
func (api *AdminAPI) EventLog(c *gin.Context) {
	max := intQuery(c, "max", 100)
	topics := []string{
		eventlog.TopicIndexAdd,
		eventlog.TopicIndexRemove,
		eventlog.TopicIndexAdd + eventlog.LockSuffix,
		eventlog.TopicIndexRemove + eventlog.LockSuffix,
	}
	events, err := api.log.Poll(c.Request.Context(), max, topics...)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// Export streams every document matching the query as JSON lines.
func (api *AdminAPI) Export(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter"})
		return
	}
	c.Header("Content-Type", "application/x-ndjson")
	if _, err := api.backup.Export(c.Request.Context(), PrincipalFromContext(c), query, c.Writer); err != nil {
		// headers are gone, best effort
		_ = c.Error(err)
	}
}

// Restore reads a JSON-lines stream from the request body and re-saves every
// record, reporting per-record failures without aborting.
func (api *AdminAPI) Restore(c *gin.Context) {
	restored, failed, err := api.backup.Restore(c.Request.Context(), PrincipalFromContext(c), c.Request.Body)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored, "failed": failed})
}

// ExportArchive exports the query result and stores it as one object in the
// configured archive. Without a key the object name is derived from the
// current time.
func (api *AdminAPI) ExportArchive(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter"})
		return
	}
	key := c.Query("key")
	if key == "" {
		key = "export-" + time.Now().UTC().Format("20060102150405") + ".ndjson"
	}
	total, err := api.backup.ExportToArchive(c.Request.Context(), PrincipalFromContext(c), query, key)
	if errors.Is(err, backup.ErrNoArchive) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exported": total, "key": key})
}

// RestoreArchive downloads an archived export and restores it.
func (api *AdminAPI) RestoreArchive(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key parameter"})
		return
	}
	restored, failed, err := api.backup.RestoreFromArchive(c.Request.Context(), PrincipalFromContext(c), key)
	if errors.Is(err, backup.ErrNoArchive) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored, "failed": failed, "key": key})
}
