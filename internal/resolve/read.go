// Package resolve expands a pack source (a mix of local manifest files, glob
// patterns, directories, and remote URLs) into the flat list of file paths
// and bytes the manifest loader consumes before handing raw bytes to
// k8s.io/apimachinery's YAML/JSON decoder.
package resolve

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// IsURL reports whether target should be fetched over HTTP(S) rather than
// read off the local filesystem.
func IsURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// remoteFetchTimeout bounds a single pack-source fetch.
const remoteFetchTimeout = 30 * time.Second

// ReadRemoteFileContent fetches target over HTTP(S).
func ReadRemoteFileContent(target string) ([]byte, error) {
	client := &http.Client{Timeout: remoteFetchTimeout}
	req, err := http.NewRequest(http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", target, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return data, nil
}

// ReadFileContent reads filename's content, dispatching to a remote fetch
// when filename is a URL.
func ReadFileContent(filename string) ([]byte, error) {
	if IsURL(filename) {
		return ReadRemoteFileContent(filename)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return data, nil
}

// isManifestFile reports whether path looks like a manifest document by
// extension, used to filter directory walks.
func isManifestFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// ResolveAllFiles expands entries (bare file paths, glob patterns, directory
// paths, or URLs) into a flat, de-duplicated, sorted list of file paths and
// URLs. A directory entry expands to every manifest file directly inside it,
// or recursively when recursive is true. URLs pass through unchanged.
func ResolveAllFiles(entries []string, recursive bool) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, entry := range entries {
		if IsURL(entry) {
			add(entry)
			continue
		}

		info, statErr := os.Stat(entry)
		switch {
		case statErr == nil && info.IsDir():
			if walkErr := filepath.Walk(entry, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if fi.IsDir() {
					if !recursive && path != entry {
						return filepath.SkipDir
					}
					return nil
				}
				if isManifestFile(path) {
					add(path)
				}
				return nil
			}); walkErr != nil {
				return nil, fmt.Errorf("walk %s: %w", entry, walkErr)
			}
		case statErr == nil:
			add(entry)
		default:
			matches, globErr := filepath.Glob(entry)
			if globErr != nil {
				return nil, fmt.Errorf("expand glob %q: %w", entry, globErr)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no such file, directory, or glob match: %s", entry)
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	sort.Strings(out)
	return out, nil
}
