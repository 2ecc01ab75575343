package resolve

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/pack.yaml"))
	assert.True(t, IsURL("http://example.com/pack.yaml"))
	assert.False(t, IsURL("./pack.yaml"))
	assert.False(t, IsURL("/abs/pack.yaml"))
}

func TestReadFileContentLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: ConfigMap\n"), 0o644))

	data, err := ReadFileContent(path)
	require.NoError(t, err)
	assert.Equal(t, "kind: ConfigMap\n", string(data))
}

func TestReadFileContentRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("kind: Secret\n"))
	}))
	defer srv.Close()

	data, err := ReadFileContent(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "kind: Secret\n", string(data))
}

func TestResolveAllFilesExpandsDirectoryNonRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.yaml"), nil, 0o644))

	files, err := ResolveAllFiles([]string{dir}, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.json"),
	}, files)
}

func TestResolveAllFilesExpandsDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.yaml"), nil, 0o644))

	files, err := ResolveAllFiles([]string{dir}, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)
}

func TestResolveAllFilesExpandsGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yaml"), nil, 0o644))

	files, err := ResolveAllFiles([]string{filepath.Join(dir, "*.yaml")}, false)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestResolveAllFilesPassesThroughURLs(t *testing.T) {
	files, err := ResolveAllFiles([]string{"https://example.com/pack.yaml"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/pack.yaml"}, files)
}

func TestResolveAllFilesErrorsOnNoMatch(t *testing.T) {
	_, err := ResolveAllFiles([]string{"/nonexistent/path/*.yaml"}, false)
	assert.Error(t, err)
}

func TestResolveAllFilesDeduplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	files, err := ResolveAllFiles([]string{path, path}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}
