// Package rest exposes the backup subsystem to the local UI layer over HTTP.
// Requests are trusted local calls; restore payloads arrive as raw bytes in
// the request body, sourced by the caller (e.g. from a user-picked file).
package rest

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gin-gonic/gin"

	"storeguard/internal/backup"
	"storeguard/internal/config"
	"storeguard/internal/platform/sqlite"
	"storeguard/internal/restart"
	"storeguard/internal/storage/dirs"
)

// backupsSubdir is where scheduled and on-demand snapshots are written,
// relative to the resolved application directory.
const backupsSubdir = "backups"

// Handler wires the backup operations to HTTP routes.
type Handler struct {
	log       *slog.Logger
	storage   config.Storage
	resolver  *dirs.Resolver
	engine    *backup.Engine
	restarter *restart.Scheduler
}

// New creates a REST handler.
func New(log *slog.Logger, storage config.Storage, resolver *dirs.Resolver, engine *backup.Engine, restarter *restart.Scheduler) *Handler {
	return &Handler{
		log:       log,
		storage:   storage,
		resolver:  resolver,
		engine:    engine,
		restarter: restarter,
	}
}

// Register attaches all routes to the router.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/database/path", h.databasePath)
	api.POST("/database/close-connections", h.closeConnections)

	api.POST("/backup", h.createBackup)
	api.POST("/backup/directory", h.createBackupDirectory)
	api.DELETE("/backup/file", h.deleteBackupFile)

	api.POST("/restore/runtime", h.restoreRuntime)
	api.POST("/restore/startup", h.restoreStartup)
	api.POST("/restore/side-file", h.restoreSideFile)

	api.POST("/cleanup", h.cleanupFile)
	api.POST("/restart", h.restartApplication)
	api.GET("/system/info", h.systemInfo)
}

func (h *Handler) appDir(c *gin.Context) (string, bool) {
	dir, err := h.resolver.Resolve(h.storage.AppName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", false
	}
	return dir, true
}

func (h *Handler) dbPath(c *gin.Context) (string, bool) {
	dir, ok := h.appDir(c)
	if !ok {
		return "", false
	}
	return dirs.DatabasePath(dir, h.storage.DatabaseFile), true
}

func (h *Handler) databasePath(c *gin.Context) {
	path, ok := h.dbPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// closeConnections runs the full checkpoint ladder so file locks are
// released before the caller performs a destructive replacement.
func (h *Handler) closeConnections(c *gin.Context) {
	path, ok := h.dbPath(c)
	if !ok {
		return
	}
	var warnings []string
	if _, err := os.Stat(path); err == nil {
		warnings = sqlite.Checkpoint(c.Request.Context(), h.log, path, sqlite.CheckpointFull)
	}
	if warnings == nil {
		warnings = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

type createBackupRequest struct {
	FileName string `json:"file_name" binding:"required"`
}

func (h *Handler) createBackup(c *gin.Context) {
	var req createBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, ok := h.appDir(c)
	if !ok {
		return
	}
	dbPath := dirs.DatabasePath(dir, h.storage.DatabaseFile)
	backupDir := filepath.Join(dir, backupsSubdir)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	desc, err := h.engine.Snapshot(c.Request.Context(), dbPath, filepath.Join(backupDir, req.FileName))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backup.ErrSourceMissing) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, desc.Result())
}

type backupDirectoryRequest struct {
	RelativePath string `json:"relative_path" binding:"required"`
}

func (h *Handler) createBackupDirectory(c *gin.Context) {
	var req backupDirectoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, ok := h.appDir(c)
	if !ok {
		return
	}
	full := filepath.Join(dir, req.RelativePath)

	// A regular file squatting on the directory name blocks MkdirAll.
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		if err := os.Remove(full); err != nil {
			h.log.Warn("could not remove file blocking directory",
				slog.String("path", full), slog.Any("err", err))
		}
	}

	if err := os.MkdirAll(full, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": full})
}

type deleteFileRequest struct {
	Path string `json:"path" binding:"required"`
}

func (h *Handler) deleteBackupFile(c *gin.Context) {
	var req deleteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := os.Remove(req.Path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": req.Path})
}

func (h *Handler) restoreRuntime(c *gin.Context) {
	data, ok := h.readPayload(c)
	if !ok {
		return
	}
	target, ok := h.dbPath(c)
	if !ok {
		return
	}
	if err := h.engine.RestoreAtRuntime(c.Request.Context(), data, target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// A fresh instance must re-open the replaced database file.
	h.restarter.Schedule()
	c.JSON(http.StatusOK, gin.H{"restored": target, "restart_scheduled": true})
}

func (h *Handler) restoreStartup(c *gin.Context) {
	data, ok := h.readPayload(c)
	if !ok {
		return
	}
	target, ok := h.dbPath(c)
	if !ok {
		return
	}
	if err := h.engine.RestoreAtStartup(c.Request.Context(), data, target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": target})
}

func (h *Handler) restoreSideFile(c *gin.Context) {
	var kind backup.SideFileKind
	switch c.Query("kind") {
	case "wal":
		kind = backup.SideFileWAL
	case "shm":
		kind = backup.SideFileSHM
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be wal or shm"})
		return
	}

	data, ok := h.readPayload(c)
	if !ok {
		return
	}
	target, ok := h.dbPath(c)
	if !ok {
		return
	}
	path, err := h.engine.RestoreSideFile(data, target, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": path})
}

type cleanupRequest struct {
	RelativePath string `json:"relative_path" binding:"required"`
}

func (h *Handler) cleanupFile(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, ok := h.appDir(c)
	if !ok {
		return
	}
	if err := h.engine.ForceDelete(filepath.Join(dir, req.RelativePath)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleaned": req.RelativePath})
}

func (h *Handler) restartApplication(c *gin.Context) {
	h.restarter.Schedule()
	c.JSON(http.StatusOK, gin.H{"restart_scheduled": true})
}

func (h *Handler) systemInfo(c *gin.Context) {
	info := gin.H{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}
	if dir, err := h.resolver.Resolve(h.storage.AppName); err != nil {
		info["app_data_error"] = err.Error()
		info["app_data_writable"] = false
	} else {
		info["app_data_dir"] = dir
		info["app_data_writable"] = true
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) readPayload(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty payload"})
		return nil, false
	}
	return data, true
}
