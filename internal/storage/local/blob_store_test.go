package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/data-hunter/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing dir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "snapshots")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "snapshots/s1.csv", "text/csv", strings.NewReader("URL,TOPIC,DESCRIPTION\n"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "snapshots", "s1.csv"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "snapshots", "s1.csv"))
	require.NoError(t, err)
	require.Equal(t, "URL,TOPIC,DESCRIPTION\n", string(data))

	_, err = store.PutObject(context.Background(), "snapshots/s1.csv", "text/csv", strings.NewReader("replaced"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "snapshots", "s1.csv"))
	require.NoError(t, err)
	require.Equal(t, "replaced", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, p := range []string{"", "  ", "../escape.csv", "a/../../escape.csv", "."} {
		_, err := store.PutObject(context.Background(), p, "", strings.NewReader("x"))
		require.Error(t, err, p)
	}
}
