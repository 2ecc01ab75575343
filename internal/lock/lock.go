// Package lock implements a reproducible lock file over a resolved
// dependency graph, with policy-governed integrity verification on build and
// download.
//
// Digest computation is stdlib crypto/sha256, encoded as "sha256:<hex>", the
// conventional OCI/container-ecosystem digest form.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/hashmap-kz/shipctl/internal/dependency"
)

// Policy controls how a stale or drifted lock entry is reconciled on
// verification.
type Policy string

const (
	// PolicyStrict requires an exact digest match; any mismatch is an error.
	PolicyStrict Policy = "Strict"
	// PolicyVersion allows digest drift but only ever warns about it.
	PolicyVersion Policy = "Version"
	// PolicySemverPatch accepts a newer patch-level version, rewriting the
	// lock entry to match.
	PolicySemverPatch Policy = "SemverPatch"
	// PolicySemverMinor accepts a newer minor-or-patch-level version,
	// rewriting the lock entry to match.
	PolicySemverMinor Policy = "SemverMinor"
)

// manifestVersion is the lock document's format version.
const manifestVersion = 1

// Dependency is one resolved dependency's lock entry.
type Dependency struct {
	Name             string       `yaml:"name"`
	ResolvedVersion  string       `yaml:"resolvedVersion"`
	Constraint       string       `yaml:"constraint,omitempty"`
	Repository       string       `yaml:"repository"`
	Digest           string       `yaml:"digest"`
	Children         []Dependency `yaml:"children,omitempty"`
}

// Lock is the persisted lock document.
type Lock struct {
	ManifestVersion  int          `yaml:"manifestVersion"`
	PackSourceDigest string       `yaml:"packSourceDigest"`
	Policy           Policy       `yaml:"policy"`
	Dependencies     []Dependency `yaml:"dependencies"`
}

// Digest returns data's content digest in "sha256:<hex>" form.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Build produces a Lock from a resolved dependency graph. digestOf computes
// each resolved node's artifact digest (a download, in production; a
// deterministic fixture in tests).
func Build(graph *dependency.Graph, packSourceDigest string, policy Policy, digestOf func(*dependency.Node) (string, error)) (*Lock, error) {
	entries, err := buildEntries(graph.Roots, digestOf)
	if err != nil {
		return nil, err
	}
	return &Lock{
		ManifestVersion:  manifestVersion,
		PackSourceDigest: packSourceDigest,
		Policy:           policy,
		Dependencies:     entries,
	}, nil
}

func buildEntries(nodes []*dependency.Node, digestOf func(*dependency.Node) (string, error)) ([]Dependency, error) {
	out := make([]Dependency, 0, len(nodes))
	for _, n := range nodes {
		digest, err := digestOf(n)
		if err != nil {
			return nil, fmt.Errorf("digest %s/%s@%s: %w", n.Repository, n.PackName, n.Version, err)
		}
		children, err := buildEntries(n.Children, digestOf)
		if err != nil {
			return nil, err
		}
		out = append(out, Dependency{
			Name:            n.Name,
			ResolvedVersion: n.Version,
			Constraint:      n.Constraint,
			Repository:      n.Repository,
			Digest:          digest,
			Children:        children,
		})
	}
	return out, nil
}

// Encode marshals l as the lock file's YAML document.
func Encode(l *Lock) ([]byte, error) {
	return yaml.Marshal(l)
}

// Decode parses a lock file's YAML document.
func Decode(data []byte) (*Lock, error) {
	var l Lock
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &l, nil
}

// ErrOutdated is returned by VerifySource when the pack's current source
// digest no longer matches the one the lock was produced from.
var ErrOutdated = fmt.Errorf("lock file is outdated")

// VerifySource reports ErrOutdated if l was produced from a different
// source-of-truth metadata file than currentSourceDigest.
func VerifySource(l *Lock, currentSourceDigest string) error {
	if l.PackSourceDigest != currentSourceDigest {
		return ErrOutdated
	}
	return nil
}

// ArtifactResult is the outcome of verifying one downloaded artifact against
// its lock entry.
type ArtifactResult struct {
	// OK is true when the artifact matches the lock entry, or a policy
	// accepted a drift.
	OK bool
	// Warning is set (OK remains true) under PolicyVersion when the digest
	// differs but the policy only warns.
	Warning string
	// Rewritten is set when PolicySemverPatch/PolicySemverMinor accepted a
	// newer version and the lock entry should be updated to it.
	Rewritten *Dependency
}

// VerifyArtifact recomputes downloaded's digest and checks it against
// entry's locked digest under policy. availableVersion is the version
// downloaded actually came from, used by
// the SemverPatch/SemverMinor rewrite rules to judge whether it is an
// acceptable newer version of entry.
func VerifyArtifact(entry Dependency, policy Policy, downloaded []byte, availableVersion string) (*ArtifactResult, error) {
	actual := Digest(downloaded)
	if actual == entry.Digest {
		return &ArtifactResult{OK: true}, nil
	}

	switch policy {
	case PolicyStrict:
		return nil, fmt.Errorf("digest mismatch for %s: locked %s, got %s", entry.Name, entry.Digest, actual)

	case PolicyVersion:
		return &ArtifactResult{
			OK:      true,
			Warning: fmt.Sprintf("digest mismatch for %s: locked %s, got %s", entry.Name, entry.Digest, actual),
		}, nil

	case PolicySemverPatch, PolicySemverMinor:
		locked, err := semver.NewVersion(entry.ResolvedVersion)
		if err != nil {
			return nil, fmt.Errorf("parse locked version %q: %w", entry.ResolvedVersion, err)
		}
		candidate, err := semver.NewVersion(availableVersion)
		if err != nil {
			return nil, fmt.Errorf("parse candidate version %q: %w", availableVersion, err)
		}
		if !candidate.GreaterThan(locked) || !acceptableBump(locked, candidate, policy) {
			return nil, fmt.Errorf("digest mismatch for %s and %s is not an acceptable update under %s policy", entry.Name, availableVersion, policy)
		}
		rewritten := entry
		rewritten.ResolvedVersion = candidate.Original()
		rewritten.Digest = actual
		return &ArtifactResult{OK: true, Rewritten: &rewritten}, nil

	default:
		return nil, fmt.Errorf("unknown lock policy %q", policy)
	}
}

// acceptableBump reports whether candidate is within the update scope
// policy allows over locked: SemverPatch permits only a patch bump within
// the same major.minor; SemverMinor additionally permits a minor bump
// within the same major, but never to a pre-release candidate unless the
// locked version is itself a pre-release.
func acceptableBump(locked, candidate *semver.Version, policy Policy) bool {
	if candidate.Major() != locked.Major() {
		return false
	}
	if policy == PolicySemverPatch {
		return candidate.Minor() == locked.Minor()
	}
	if candidate.Prerelease() != "" && locked.Prerelease() == "" {
		return false
	}
	return true // PolicySemverMinor: any minor within the same major
}
