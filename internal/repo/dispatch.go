package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashmap-kz/shipctl/internal/dependency"
)

// Dispatcher routes a repository reference to the Backend that serves it:
// "oci://..." to the OCI backend, a local filesystem path to the local
// backend, and anything else (http(s)://...) to the HTTP index backend.
// Backends are built lazily and cached per repository reference.
type Dispatcher struct {
	cache map[string]Backend
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{cache: map[string]Backend{}}
}

func (d *Dispatcher) backendFor(repository string) (Backend, error) {
	if b, ok := d.cache[repository]; ok {
		return b, nil
	}
	var b Backend
	switch {
	case strings.HasPrefix(repository, "oci://"):
		oci, err := NewOCIBackend(repository)
		if err != nil {
			return nil, err
		}
		b = oci
	case strings.HasPrefix(repository, "http://"), strings.HasPrefix(repository, "https://"):
		b = NewHTTPBackend(repository)
	default:
		b = NewLocalBackend(repository)
	}
	d.cache[repository] = b
	return b, nil
}

// Search exposes a backend's raw Search to callers that want entries rather
// than the bare version list Versions returns (the repo search CLI command).
func (d *Dispatcher) Search(ctx context.Context, repository, query string) ([]Entry, error) {
	b, err := d.backendFor(repository)
	if err != nil {
		return nil, err
	}
	return b.Search(ctx, query)
}

// Versions satisfies dependency.Source by listing every version FindBestMatch
// would consider: it asks the backend for an unconstrained match's sibling
// set via Search, falling back to a single FindBestMatch("") probe for
// backends whose Search is unsupported (the OCI backend).
func (d *Dispatcher) Versions(ctx context.Context, repository, name string) ([]string, error) {
	b, err := d.backendFor(repository)
	if err != nil {
		return nil, err
	}
	entries, err := b.Search(ctx, name)
	if err == nil {
		versions := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Name == name {
				versions = append(versions, e.Version)
			}
		}
		if len(versions) > 0 {
			return versions, nil
		}
	}
	match, err := b.FindBestMatch(ctx, name, "")
	if err != nil {
		return nil, err
	}
	return []string{match.Version}, nil
}

// Dependencies satisfies dependency.Source. Transitive dependency discovery
// requires downloading and inspecting the candidate pack's own metadata,
// which is outside this facade's narrow fetch/find-best-match contract;
// callers that need transitive resolution supply their own dependency.Source
// wrapping PackMetadataReader over a Download'd archive.
func (d *Dispatcher) Dependencies(_ context.Context, _, _, _ string) ([]dependency.Declared, error) {
	return nil, nil
}

var _ dependency.Source = (*Dispatcher)(nil)

// Get resolves (and downloads) the best match of name@constraint from
// repository, returning the archive bytes alongside the version actually
// selected — the shape lock building and artifact verification need
// together.
func (d *Dispatcher) Get(ctx context.Context, repository, name, constraint string) (version string, archive []byte, err error) {
	b, err := d.backendFor(repository)
	if err != nil {
		return "", nil, err
	}
	match, err := b.FindBestMatch(ctx, name, constraint)
	if err != nil {
		return "", nil, err
	}
	data, err := b.Download(ctx, name, match.Version)
	if err != nil {
		return "", nil, fmt.Errorf("download %s@%s: %w", name, match.Version, err)
	}
	return match.Version, data, nil
}
