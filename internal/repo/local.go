package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend resolves packs from a directory of packed archives named
// "<name>-<version>.tgz", listed directly off os/path/filepath — there is
// no index to fetch, the directory listing is the index.
type LocalBackend struct {
	dir string
}

// NewLocalBackend builds a LocalBackend rooted at dir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (b *LocalBackend) entries() ([]Entry, error) {
	files, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.dir, err)
	}
	var out []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".tgz") {
			continue
		}
		name, version, ok := splitArchiveName(strings.TrimSuffix(f.Name(), ".tgz"))
		if !ok {
			continue
		}
		out = append(out, Entry{Name: name, Version: version})
	}
	return out, nil
}

// splitArchiveName splits "<name>-<version>" on the last hyphen that
// precedes something parseable as a version (the version itself may
// contain hyphens, e.g. prerelease suffixes, so this takes the first
// hyphen followed by a digit from the right).
func splitArchiveName(base string) (name, version string, ok bool) {
	for i := len(base) - 1; i > 0; i-- {
		if base[i] == '-' && i+1 < len(base) && base[i+1] >= '0' && base[i+1] <= '9' {
			return base[:i], base[i+1:], true
		}
	}
	return "", "", false
}

// Search returns every archived pack whose name contains query.
func (b *LocalBackend) Search(_ context.Context, query string) ([]Entry, error) {
	all, err := b.entries()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}
	var out []Entry
	for _, e := range all {
		if strings.Contains(e.Name, query) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindBestMatch picks the highest archived version of name satisfying
// constraint.
func (b *LocalBackend) FindBestMatch(_ context.Context, name, constraint string) (Entry, error) {
	all, err := b.entries()
	if err != nil {
		return Entry{}, err
	}
	var candidates []Entry
	for _, e := range all {
		if e.Name == name {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Entry{}, fmt.Errorf("pack %q not found in %s", name, b.dir)
	}
	return findBestMatch(name, constraint, candidates)
}

// Download reads "<name>-<version>.tgz" off disk.
func (b *LocalBackend) Download(_ context.Context, name, version string) ([]byte, error) {
	path := filepath.Join(b.dir, fmt.Sprintf("%s-%s.tgz", name, version))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Push writes archive to "<destination>.tgz" under dir.
func (b *LocalBackend) Push(_ context.Context, archive []byte, destination string) error {
	path := filepath.Join(b.dir, destination+".tgz")
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
