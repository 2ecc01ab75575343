package cmd

import (
	"fmt"

	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/resolve"
)

// loadManifests expands filenames (paths, globs, directories, URLs) and
// decodes every resulting document into Manifests, in file order, via the
// resolve.ResolveAllFiles -> resolve.ReadFileContent -> manifest.LoadAll
// pipeline.
func loadManifests(filenames []string, recursive bool) ([]*manifest.Manifest, error) {
	files, err := resolve.ResolveAllFiles(filenames, recursive)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest sources: %w", err)
	}

	var docs [][]byte
	for _, f := range files {
		content, err := resolve.ReadFileContent(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		docs = append(docs, content)
	}
	return manifest.LoadAll(docs)
}
