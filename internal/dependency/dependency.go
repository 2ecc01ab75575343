// Package dependency resolves a pack's declared dependency list against a
// repository backend into a conflict-free, topologically ordered install
// graph.
//
// Constraint parsing and version selection build on Masterminds/semver/v3
// (^/~/>=/exact range syntax, fetch candidates, filter by constraint, pick
// highest). The diamond-conflict detection and topological sort are
// hand-written graph code.
package dependency

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ResolvePolicy controls whether a Declared dependency is considered for
// resolution independent of its Condition.
type ResolvePolicy string

const (
	ResolvePolicyWhenEnabled ResolvePolicy = "WhenEnabled"
	ResolvePolicyAlways      ResolvePolicy = "Always"
	ResolvePolicyNever       ResolvePolicy = "Never"
)

// Declared is one entry in a pack's declared dependency list.
type Declared struct {
	Name              string        `yaml:"name"`
	Alias             string        `yaml:"alias,omitempty"`
	Repository        string        `yaml:"repository"`
	VersionConstraint string        `yaml:"versionConstraint,omitempty"`
	Enabled           bool          `yaml:"enabled"`
	Condition         string        `yaml:"condition,omitempty"`
	ResolvePolicy     ResolvePolicy `yaml:"resolvePolicy,omitempty"`
}

// effectiveName is the local identity a Declared dependency resolves under:
// its alias when set, otherwise its name.
func (d Declared) effectiveName() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

// Candidate is a repository backend's answer for a (repository, name)
// lookup: every available version, used to select the highest one
// satisfying a constraint.
type Candidate struct {
	Repository string
	Name       string
	Versions   []string
}

// Source looks up available versions and declared sub-dependencies for a
// resolved pack, so the resolver can recurse. The Repository Façade
// (internal/repo) is the production implementation.
type Source interface {
	Versions(ctx context.Context, repository, name string) ([]string, error)
	Dependencies(ctx context.Context, repository, name, version string) ([]Declared, error)
}

// ConditionEvaluator evaluates a Declared dependency's condition path
// against the current values tree. Kept as a narrow function type rather
// than requiring a values package import, since the values tree shape is
// the front-end's concern, not the resolver's.
type ConditionEvaluator func(path string) bool

// Node is one resolved dependency in the graph: which Declared entry
// produced it, what version was chosen, and who its own dependencies are.
type Node struct {
	Name       string // effective (possibly aliased) local name
	Repository string
	PackName   string // upstream package name, before aliasing
	Version    string
	Constraint string
	Parent     string // effective name of the parent that introduced this node, "" at the root
	Children   []*Node
}

// ConflictEntry enumerates one parent -> required constraint -> chosen
// version line in a Conflict error.
type ConflictEntry struct {
	Parent     string
	Constraint string
	Version    string
}

// ConflictError reports a diamond conflict: two or more resolutions of the
// same (repository, name) landed on different versions.
type ConflictError struct {
	Repository string
	Name       string
	Entries    []ConflictEntry
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("diamond conflict on %s/%s:", e.Repository, e.Name)
	for _, entry := range e.Entries {
		msg += fmt.Sprintf(" [%s -> %s -> %s]", entry.Parent, entry.Constraint, entry.Version)
	}
	return msg
}

// Graph is the output of Resolve: every distinct resolved node plus a
// topological install order (dependencies before dependents).
type Graph struct {
	Roots []*Node
	Order []*Node
}

// arrival records one arrival at a given (repository, name) key; Resolve
// keeps every arrival across the whole resolve, so diamond conflicts can be detected once recursion
// finishes rather than on first sight (a later branch might still resolve
// to the same version as an earlier one).
type arrival struct {
	parent     string
	constraint string
	version    string
}

// Resolve walks declared's dependency closure against src, filtering by
// enablement, selecting the highest constraint-satisfying version for each
// retained entry, recursing into each candidate's own declared dependencies,
// and finally checking for diamond conflicts before producing a topological
// install order.
func Resolve(ctx context.Context, declared []Declared, src Source, eval ConditionEvaluator) (*Graph, error) {
	arrivals := map[string][]arrival{}
	nodesByKey := map[string]*Node{}

	var resolveOne func(parent string, d Declared) (*Node, error)
	resolveOne = func(parent string, d Declared) (*Node, error) {
		if !retained(d, eval) {
			return nil, nil
		}

		versions, err := src.Versions(ctx, d.Repository, d.Name)
		if err != nil {
			return nil, fmt.Errorf("list versions of %s/%s: %w", d.Repository, d.Name, err)
		}
		version, err := selectHighest(versions, d.VersionConstraint)
		if err != nil {
			return nil, fmt.Errorf("select version of %s/%s: %w", d.Repository, d.Name, err)
		}

		key := d.Repository + "/" + d.Name
		arrivals[key] = append(arrivals[key], arrival{parent: parent, constraint: d.VersionConstraint, version: version})

		nodeKey := key + "@" + version + "#" + d.effectiveName()
		if existing, ok := nodesByKey[nodeKey]; ok {
			return existing, nil
		}

		node := &Node{
			Name:       d.effectiveName(),
			Repository: d.Repository,
			PackName:   d.Name,
			Version:    version,
			Constraint: d.VersionConstraint,
			Parent:     parent,
		}
		nodesByKey[nodeKey] = node

		children, err := src.Dependencies(ctx, d.Repository, d.Name, version)
		if err != nil {
			return nil, fmt.Errorf("load dependencies of %s/%s@%s: %w", d.Repository, d.Name, version, err)
		}
		for _, child := range children {
			childNode, err := resolveOne(node.Name, child)
			if err != nil {
				return nil, err
			}
			if childNode != nil {
				node.Children = append(node.Children, childNode)
			}
		}
		return node, nil
	}

	var roots []*Node
	for _, d := range declared {
		node, err := resolveOne("", d)
		if err != nil {
			return nil, err
		}
		if node != nil {
			roots = append(roots, node)
		}
	}

	if err := checkDiamonds(arrivals); err != nil {
		return nil, err
	}

	order, err := topoSort(roots)
	if err != nil {
		return nil, err
	}
	return &Graph{Roots: roots, Order: order}, nil
}

// retained applies the dependency's enablement filter.
func retained(d Declared, eval ConditionEvaluator) bool {
	if d.ResolvePolicy == ResolvePolicyNever {
		return false
	}
	if d.ResolvePolicy == ResolvePolicyAlways {
		return true
	}
	if !d.Enabled {
		return false
	}
	if d.Condition == "" {
		return true
	}
	if eval == nil {
		return true
	}
	return eval(d.Condition)
}

// selectHighest returns the highest version in available satisfying
// constraint (empty constraint matches everything).
func selectHighest(available []string, constraint string) (string, error) {
	var c *semver.Constraints
	if constraint != "" {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return "", fmt.Errorf("parse constraint %q: %w", constraint, err)
		}
		c = parsed
	}

	var best *semver.Version
	for _, raw := range available {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if c != nil && !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", fmt.Errorf("no version satisfies constraint %q among %v", constraint, available)
	}
	return best.Original(), nil
}

// checkDiamonds reports a ConflictError for the first (repository, name) key,
// in sorted key order, that arrived at more than one distinct version.
func checkDiamonds(arrivals map[string][]arrival) error {
	keys := make([]string, 0, len(arrivals))
	for k := range arrivals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		seen := map[string]bool{}
		for _, a := range arrivals[key] {
			seen[a.version] = true
		}
		if len(seen) <= 1 {
			continue
		}
		parts := splitRepoName(key)
		entries := make([]ConflictEntry, len(arrivals[key]))
		for i, a := range arrivals[key] {
			entries[i] = ConflictEntry{Parent: a.parent, Constraint: a.constraint, Version: a.version}
		}
		return &ConflictError{Repository: parts[0], Name: parts[1], Entries: entries}
	}
	return nil
}

func splitRepoName(key string) [2]string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return [2]string{key[:i], key[i+1:]}
		}
	}
	return [2]string{"", key}
}

// topoSort produces an install order (dependencies before dependents) over
// the resolved forest via recursive post-order DFS, erroring on a cycle
// (which a correctly-resolved dependency tree should never produce, but a
// malformed Source could report one).
func topoSort(roots []*Node) ([]*Node, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[*Node]int{}
	var order []*Node

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle detected at %s", n.Name)
		}
		state[n] = visiting
		for _, child := range n.Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		state[n] = done
		order = append(order, n)
		return nil
	}

	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}
