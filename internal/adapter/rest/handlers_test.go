package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeguard/internal/backup"
	"storeguard/internal/config"
	"storeguard/internal/platform/sqlite"
	"storeguard/internal/restart"
	"storeguard/internal/storage/dirs"
)

type testHarness struct {
	router    *gin.Engine
	storage   config.Storage
	appDir    string
	dbPath    string
	restarter *restart.Scheduler
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	storage := config.Storage{
		AppName:      "com.example.test",
		DatabaseFile: "store.db",
		Roots: config.RootOverrides{
			PrimaryData:   root,
			SecondaryData: root,
			Documents:     root,
			Temp:          root,
		},
	}
	resolver := dirs.NewResolver(storage.Roots, log)
	engine := backup.NewEngine(log)

	// Long enough that the timer can never fire inside a test run.
	restarter := restart.NewScheduler(log, time.Hour)
	t.Cleanup(func() { restarter.Cancel() })

	router := gin.New()
	New(log, storage, resolver, engine, restarter).Register(router)

	appDir := filepath.Join(root, storage.AppName)
	return &testHarness{
		router:    router,
		storage:   storage,
		appDir:    appDir,
		dbPath:    filepath.Join(appDir, storage.DatabaseFile),
		restarter: restarter,
	}
}

func (h *testHarness) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if len(body) > 0 && body[0] == '{' {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// seedDatabase creates a populated database at the harness db path.
func (h *testHarness) seedDatabase(t *testing.T) {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), h.dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, payload BLOB NOT NULL)`)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err = db.Exec(`INSERT INTO items (payload) VALUES (?)`, make([]byte, 512))
		require.NoError(t, err)
	}
}

func TestDatabasePath(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/database/path", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, h.dbPath, body["path"])
}

func TestCloseConnections_NoDatabaseYet(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/database/close-connections", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Empty(t, body["warnings"])
}

func TestCreateBackup(t *testing.T) {
	h := newHarness(t)
	h.seedDatabase(t)

	w := h.do(t, http.MethodPost, "/api/backup", []byte(`{"file_name":"manual.bak"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeJSON(t, w)
	assert.Equal(t, true, body["success"])
	assert.Greater(t, body["size"].(float64), float64(0))
	assert.Len(t, body["checksum"], 64)

	assert.FileExists(t, filepath.Join(h.appDir, "backups", "manual.bak"))
}

func TestCreateBackup_SourceMissing(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/backup", []byte(`{"file_name":"manual.bak"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBackup_BadRequest(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/backup", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBackupDirectory(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/backup/directory", []byte(`{"relative_path":"backups/daily"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.DirExists(t, filepath.Join(h.appDir, "backups", "daily"))
}

func TestCreateBackupDirectory_RemovesSquattingFile(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.appDir, 0755))
	squatter := filepath.Join(h.appDir, "backups")
	require.NoError(t, os.WriteFile(squatter, []byte("not a dir"), 0644))

	w := h.do(t, http.MethodPost, "/api/backup/directory", []byte(`{"relative_path":"backups"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.DirExists(t, squatter)
}

func TestDeleteBackupFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "old.bak")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	payload, err := json.Marshal(map[string]string{"path": path})
	require.NoError(t, err)

	w := h.do(t, http.MethodDelete, "/api/backup/file", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, path)
}

func TestRestoreStartup(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.appDir, 0755))
	require.NoError(t, os.WriteFile(h.dbPath, []byte("old"), 0644))

	w := h.do(t, http.MethodPost, "/api/restore/startup", []byte("restored bytes"))
	require.Equal(t, http.StatusOK, w.Code)

	got, err := os.ReadFile(h.dbPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("restored bytes"), got)

	safety, err := os.ReadFile(h.dbPath + ".pre-restore-backup")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), safety)
}

func TestRestoreStartup_EmptyPayload(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/restore/startup", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestoreRuntime_SchedulesRestart(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/restore/runtime", []byte("restored bytes"))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, true, body["restart_scheduled"])

	got, err := os.ReadFile(h.dbPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("restored bytes"), got)

	// Cancel returns true only when a restart was actually pending.
	assert.True(t, h.restarter.Cancel())
}

func TestRestoreSideFile(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/restore/side-file?kind=wal", []byte("wal frames"))
	require.Equal(t, http.StatusOK, w.Code)

	got, err := os.ReadFile(h.dbPath + "-wal")
	require.NoError(t, err)
	assert.Equal(t, []byte("wal frames"), got)
}

func TestRestoreSideFile_InvalidKind(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/restore/side-file?kind=journal", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanupFile(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.appDir, 0755))
	leftover := filepath.Join(h.appDir, "store.db.restore.tmp")
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0644))

	w := h.do(t, http.MethodPost, "/api/cleanup", []byte(`{"relative_path":"store.db.restore.tmp"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, leftover)
}

func TestCleanupFile_MissingIsOK(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/cleanup", []byte(`{"relative_path":"never-existed.tmp"}`))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRestartApplication(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.restarter.Cancel())
}

func TestSystemInfo(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/system/info", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, true, body["app_data_writable"])
	assert.Equal(t, h.appDir, body["app_data_dir"])
}
