// Package repo implements the Repository Facade: a narrow
// Search/FindBestMatch/Download/Push contract over three backends (HTTP
// index, OCI registry, local directory), and the Dependency Resolver's
// dependency.Source adapter over it.
//
// The HTTP backend fetches and decodes an index.yaml (gopkg.in/yaml.v3) and
// filters candidate versions with Masterminds/semver/v3; Dispatcher's
// "oci://" prefix check routes callers to the OCI backend instead.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Entry is one resolvable (name, version) a backend knows about.
type Entry struct {
	Name        string
	Version     string
	Description string
}

// VersionNotFoundError is returned by FindBestMatch when no available
// version satisfies constraint; Available lists what was on offer so the
// caller can report a useful message.
type VersionNotFoundError struct {
	Name       string
	Constraint string
	Available  []string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("no version of %q satisfies constraint %q (available: %v)", e.Name, e.Constraint, e.Available)
}

// ErrPushUnsupported is returned by Push on backends that are read-only
// (the HTTP index backend).
var ErrPushUnsupported = errors.New("backend does not support push")

// Backend is the contract every repository implementation satisfies.
type Backend interface {
	Search(ctx context.Context, query string) ([]Entry, error)
	FindBestMatch(ctx context.Context, name, constraint string) (Entry, error)
	Download(ctx context.Context, name, version string) ([]byte, error)
	Push(ctx context.Context, archive []byte, destination string) error
}

// findBestMatch is the shared "filter available versions by constraint,
// pick highest" logic every Backend's FindBestMatch delegates to, grounded
// on FindBestChartVersion's fetch-filter-pick-highest shape.
func findBestMatch(name, constraint string, available []Entry) (Entry, error) {
	var c *semver.Constraints
	if constraint != "" {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return Entry{}, fmt.Errorf("parse constraint %q: %w", constraint, err)
		}
		c = parsed
	}

	var best Entry
	var bestVersion *semver.Version
	versions := make([]string, 0, len(available))
	for _, e := range available {
		v, err := semver.NewVersion(e.Version)
		if err != nil {
			continue
		}
		versions = append(versions, e.Version)
		if v.Prerelease() != "" {
			continue
		}
		if c != nil && !c.Check(v) {
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			bestVersion = v
			best = e
		}
	}
	if bestVersion == nil {
		return Entry{}, &VersionNotFoundError{Name: name, Constraint: constraint, Available: versions}
	}
	return best, nil
}
