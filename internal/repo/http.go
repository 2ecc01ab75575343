package repo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// chartIndex mirrors the index.yaml shape santosr2-uptool's HelmClient
// decodes: a map of pack name to its known versions.
type chartIndex struct {
	APIVersion string                  `yaml:"apiVersion"`
	Entries    map[string][]indexEntry `yaml:"entries"`
}

type indexEntry struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// HTTPBackend resolves packs against a remote index.yaml, the same
// repository format Helm chart repositories serve.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend builds an HTTPBackend rooted at baseURL. The client strips
// the Authorization header on any redirect that crosses to a different host.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout:       30 * time.Second,
			CheckRedirect: stripCredentialsOnCrossOriginRedirect,
		},
	}
}

// stripCredentialsOnCrossOriginRedirect drops the Authorization header
// before following a redirect to a host other than the original request's
// host: credentials scoped to the original host are never forwarded to
// another one.
func stripCredentialsOnCrossOriginRedirect(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}
	if req.URL.Host != via[0].URL.Host {
		req.Header.Del("Authorization")
	}
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	return nil
}

func (b *HTTPBackend) fetchIndex(ctx context.Context) (*chartIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/index.yaml", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create index request: %w", err)
	}
	req.Header.Set("Accept", "application/x-yaml")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch index: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx chartIndex
	if err := yaml.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("parse index.yaml: %w", err)
	}
	return &idx, nil
}

// Search returns every indexed pack whose name contains query.
func (b *HTTPBackend) Search(ctx context.Context, query string) ([]Entry, error) {
	idx, err := b.fetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for name, entries := range idx.Entries {
		if query != "" && !strings.Contains(name, query) {
			continue
		}
		for _, e := range entries {
			out = append(out, Entry{Name: name, Version: e.Version, Description: e.Description})
		}
	}
	return out, nil
}

// FindBestMatch picks the highest version of name satisfying constraint.
func (b *HTTPBackend) FindBestMatch(ctx context.Context, name, constraint string) (Entry, error) {
	idx, err := b.fetchIndex(ctx)
	if err != nil {
		return Entry{}, err
	}
	entries, ok := idx.Entries[name]
	if !ok || len(entries) == 0 {
		return Entry{}, fmt.Errorf("pack %q not found in repository", name)
	}
	candidates := make([]Entry, len(entries))
	for i, e := range entries {
		candidates[i] = Entry{Name: name, Version: e.Version, Description: e.Description}
	}
	return findBestMatch(name, constraint, candidates)
}

// Download fetches the packed archive for name@version, conventionally
// named "<name>-<version>.tgz" alongside index.yaml.
func (b *HTTPBackend) Download(ctx context.Context, name, version string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s-%s.tgz", b.baseURL, name, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s@%s: %w", name, version, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s@%s: unexpected status %d", name, version, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s@%s: %w", name, version, err)
	}
	return data, nil
}

// Push is unsupported: an HTTP index repository is a read-only publishing
// target from this engine's point of view.
func (b *HTTPBackend) Push(_ context.Context, _ []byte, _ string) error {
	return ErrPushUnsupported
}
