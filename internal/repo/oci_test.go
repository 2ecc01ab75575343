package repo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOCIBackendParsesHostAndRepository(t *testing.T) {
	b, err := NewOCIBackend("oci://registry.example.com/shipctl/packs")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com", b.host)
	assert.Equal(t, "shipctl/packs", b.repository)
}

func TestNewOCIBackendRejectsMalformedRef(t *testing.T) {
	_, err := NewOCIBackend("oci://justahost")
	assert.Error(t, err)
}

func TestOCIBackendSearchIsUnsupported(t *testing.T) {
	b, err := NewOCIBackend("oci://registry.example.com/packs")
	require.NoError(t, err)
	_, err = b.Search(context.Background(), "anything")
	assert.Error(t, err)
}

// ociRegistry is a minimal in-memory stand-in for the distribution HTTP API
// subset OCIBackend speaks: tag listing, manifest GET/PUT, blob GET and the
// two-step monolithic upload.
type ociRegistry struct {
	manifests map[string]ociManifest
	blobs     map[string][]byte
}

func newOCIRegistryServer(t *testing.T) (*httptest.Server, *ociRegistry) {
	t.Helper()
	reg := &ociRegistry{manifests: map[string]ociManifest{}, blobs: map[string][]byte{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/packs/tags/list", func(w http.ResponseWriter, _ *http.Request) {
		tags := make([]string, 0, len(reg.manifests))
		for tag := range reg.manifests {
			tags = append(tags, tag)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tags": tags})
	})
	mux.HandleFunc("/v2/packs/manifests/", func(w http.ResponseWriter, r *http.Request) {
		tag := r.URL.Path[len("/v2/packs/manifests/"):]
		switch r.Method {
		case http.MethodGet:
			m, ok := reg.manifests[tag]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(m)
		case http.MethodPut:
			var m ociManifest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			reg.manifests[tag] = m
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/v2/packs/blobs/uploads/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "/v2/packs/blobs/uploads/session1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/v2/packs/blobs/uploads/session1", func(w http.ResponseWriter, r *http.Request) {
		digest := r.URL.Query().Get("digest")
		body, _ := io.ReadAll(r.Body)
		reg.blobs[digest] = body
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/v2/packs/blobs/", func(w http.ResponseWriter, r *http.Request) {
		digest := r.URL.Path[len("/v2/packs/blobs/"):]
		data, ok := reg.blobs[digest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	})
	return httptest.NewTLSServer(mux), reg
}

func newTestOCIBackend(srv *httptest.Server) *OCIBackend {
	return &OCIBackend{
		host:       srv.Listener.Addr().String(),
		repository: "packs",
		client:     srv.Client(),
	}
}

func TestOCIBackendFindBestMatchPicksHighestTag(t *testing.T) {
	srv, reg := newOCIRegistryServer(t)
	defer srv.Close()
	reg.manifests["1.0.0"] = ociManifest{}
	reg.manifests["1.2.0"] = ociManifest{}

	b := newTestOCIBackend(srv)
	entry, err := b.FindBestMatch(context.Background(), "mypack", "")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", entry.Version)
}

func TestOCIBackendPushThenDownloadRoundTrips(t *testing.T) {
	srv, _ := newOCIRegistryServer(t)
	defer srv.Close()

	b := newTestOCIBackend(srv)
	archive := []byte("packed-archive-bytes")
	require.NoError(t, b.Push(context.Background(), archive, "1.0.0"))

	data, err := b.Download(context.Background(), "mypack", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, archive, data)
}

func TestOCIBackendDownloadErrorsOnMissingManifest(t *testing.T) {
	srv, _ := newOCIRegistryServer(t)
	defer srv.Close()

	b := newTestOCIBackend(srv)
	_, err := b.Download(context.Background(), "mypack", "9.9.9")
	assert.Error(t, err)
}
