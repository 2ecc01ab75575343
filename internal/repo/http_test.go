package repo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = `apiVersion: v1
entries:
  webapp:
    - name: webapp
      version: 2.1.0
      description: second cut
    - name: webapp
      version: 2.0.0
      description: first cut
    - name: webapp
      version: 3.0.0-rc.1
      description: prerelease
`

func newTestIndexServer(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.yaml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testIndex))
	})
	mux.HandleFunc("/webapp-2.1.0.tgz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	return httptest.NewServer(mux)
}

func TestHTTPBackendSearchListsMatchingEntries(t *testing.T) {
	srv := newTestIndexServer(t, []byte("archive-bytes"))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	entries, err := b.Search(context.Background(), "web")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestHTTPBackendFindBestMatchSkipsPrereleaseAndPicksHighest(t *testing.T) {
	srv := newTestIndexServer(t, []byte("archive-bytes"))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	entry, err := b.FindBestMatch(context.Background(), "webapp", ">=1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", entry.Version)
}

func TestHTTPBackendFindBestMatchRespectsConstraint(t *testing.T) {
	srv := newTestIndexServer(t, []byte("archive-bytes"))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	entry, err := b.FindBestMatch(context.Background(), "webapp", "<2.1.0")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", entry.Version)
}

func TestHTTPBackendFindBestMatchErrorsWhenUnsatisfiable(t *testing.T) {
	srv := newTestIndexServer(t, []byte("archive-bytes"))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	_, err := b.FindBestMatch(context.Background(), "webapp", ">=9.0.0")
	require.Error(t, err)
	var notFound *VersionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestHTTPBackendDownloadFetchesConventionalArchiveName(t *testing.T) {
	srv := newTestIndexServer(t, []byte("archive-bytes"))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	data, err := b.Download(context.Background(), "webapp", "2.1.0")
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestHTTPBackendPushIsUnsupported(t *testing.T) {
	b := NewHTTPBackend("https://repo.example.com")
	err := b.Push(context.Background(), []byte("x"), "webapp-2.1.0")
	assert.ErrorIs(t, err, ErrPushUnsupported)
}

func TestStripCredentialsOnCrossOriginRedirectDropsAuthHeaderAcrossHosts(t *testing.T) {
	original, err := http.NewRequest(http.MethodGet, "https://origin.example.com/index.yaml", http.NoBody)
	require.NoError(t, err)

	next, err := http.NewRequest(http.MethodGet, "https://other.example.com/index.yaml", http.NoBody)
	require.NoError(t, err)
	next.Header.Set("Authorization", "Bearer secret")

	err = stripCredentialsOnCrossOriginRedirect(next, []*http.Request{original})
	require.NoError(t, err)
	assert.Empty(t, next.Header.Get("Authorization"))
}

func TestStripCredentialsOnCrossOriginRedirectKeepsAuthHeaderSameHost(t *testing.T) {
	original, err := http.NewRequest(http.MethodGet, "https://origin.example.com/index.yaml", http.NoBody)
	require.NoError(t, err)

	next, err := http.NewRequest(http.MethodGet, "https://origin.example.com/other.yaml", http.NoBody)
	require.NoError(t, err)
	next.Header.Set("Authorization", "Bearer secret")

	err = stripCredentialsOnCrossOriginRedirect(next, []*http.Request{original})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", next.Header.Get("Authorization"))
}
