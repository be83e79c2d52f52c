package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreAtStartup_CreatesSafetyCopy(t *testing.T) {
	e := testEngine(t)
	target := filepath.Join(t.TempDir(), "store.db")
	original := []byte("pre-restore content")
	require.NoError(t, os.WriteFile(target, original, 0644))

	restored := []byte("restored content")
	require.NoError(t, e.RestoreAtStartup(context.Background(), restored, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, restored, got)

	safety, err := os.ReadFile(target + preRestoreBackupSuffix)
	require.NoError(t, err)
	assert.Equal(t, original, safety)
}

func TestRestoreAtStartup_NoExistingTarget(t *testing.T) {
	e := testEngine(t)
	target := filepath.Join(t.TempDir(), "store.db")

	restored := []byte("restored content")
	require.NoError(t, e.RestoreAtStartup(context.Background(), restored, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, restored, got)
	assert.NoFileExists(t, target+preRestoreBackupSuffix)
}

func TestRestoreAtRuntime_ReplacesTarget(t *testing.T) {
	e := testEngine(t)
	target := filepath.Join(t.TempDir(), "store.db")

	restored := []byte("restored content")
	require.NoError(t, e.RestoreAtRuntime(context.Background(), restored, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, restored, got)
}

func TestRestoreSideFile(t *testing.T) {
	e := testEngine(t)
	dbPath := filepath.Join(t.TempDir(), "store.db")

	tests := []struct {
		kind SideFileKind
		want string
	}{
		{SideFileWAL, dbPath + "-wal"},
		{SideFileSHM, dbPath + "-shm"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			data := []byte("side file bytes for " + tt.kind.String())
			path, err := e.RestoreSideFile(data, dbPath, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, path)

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestSideFileKindString(t *testing.T) {
	assert.Equal(t, "wal", SideFileWAL.String())
	assert.Equal(t, "shm", SideFileSHM.String())
}
