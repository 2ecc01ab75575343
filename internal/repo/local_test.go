package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, dir, name, version, content string) {
	t.Helper()
	path := filepath.Join(dir, name+"-"+version+".tgz")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalBackendSearchListsArchivedPacks(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "redis", "6.0.0", "redis-data")
	writeArchive(t, dir, "cert-manager", "1.2.3", "cm-data")

	b := NewLocalBackend(dir)
	entries, err := b.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLocalBackendSearchFiltersByQuery(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "redis", "6.0.0", "redis-data")
	writeArchive(t, dir, "cert-manager", "1.2.3", "cm-data")

	b := NewLocalBackend(dir)
	entries, err := b.Search(context.Background(), "cert")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cert-manager", entries[0].Name)
	assert.Equal(t, "1.2.3", entries[0].Version)
}

func TestLocalBackendFindBestMatchPicksHighestSatisfying(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "redis", "6.0.0", "v1")
	writeArchive(t, dir, "redis", "6.2.0", "v2")
	writeArchive(t, dir, "redis", "7.0.0", "v3")

	b := NewLocalBackend(dir)
	entry, err := b.FindBestMatch(context.Background(), "redis", "~6.0")
	require.NoError(t, err)
	assert.Equal(t, "6.2.0", entry.Version)
}

func TestLocalBackendFindBestMatchErrorsWhenPackAbsent(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBackend(dir)
	_, err := b.FindBestMatch(context.Background(), "redis", "")
	require.Error(t, err)
}

func TestLocalBackendDownloadReadsArchiveBytes(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "redis", "6.0.0", "redis-data")

	b := NewLocalBackend(dir)
	data, err := b.Download(context.Background(), "redis", "6.0.0")
	require.NoError(t, err)
	assert.Equal(t, "redis-data", string(data))
}

func TestLocalBackendPushWritesArchiveFile(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBackend(dir)
	require.NoError(t, b.Push(context.Background(), []byte("new-data"), "redis-6.0.0"))

	data, err := os.ReadFile(filepath.Join(dir, "redis-6.0.0.tgz"))
	require.NoError(t, err)
	assert.Equal(t, "new-data", string(data))
}

func TestSplitArchiveNameSplitsOnLastHyphenBeforeDigit(t *testing.T) {
	cases := []struct {
		base            string
		name, version   string
		ok              bool
	}{
		{"redis-6.0.0", "redis", "6.0.0", true},
		{"cert-manager-1.2.3", "cert-manager", "1.2.3", true},
		{"no-version-here", "", "", false},
	}
	for _, tc := range cases {
		name, version, ok := splitArchiveName(tc.base)
		assert.Equal(t, tc.ok, ok, tc.base)
		if tc.ok {
			assert.Equal(t, tc.name, name, tc.base)
			assert.Equal(t, tc.version, version, tc.base)
		}
	}
}
