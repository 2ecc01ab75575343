package dependency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a hand-rolled Source backed by in-memory maps, so Resolve
// can be tested without a real repository backend.
type fakeSource struct {
	versions map[string][]string            // "repo/name" -> versions
	deps     map[string][]Declared          // "repo/name@version" -> declared children
}

func (s *fakeSource) Versions(_ context.Context, repository, name string) ([]string, error) {
	return s.versions[repository+"/"+name], nil
}

func (s *fakeSource) Dependencies(_ context.Context, repository, name, version string) ([]Declared, error) {
	return s.deps[repository+"/"+name+"@"+version], nil
}

func TestResolveSelectsHighestSatisfyingVersion(t *testing.T) {
	src := &fakeSource{
		versions: map[string][]string{
			"repo1/redis": {"6.0.0", "6.2.0", "7.0.0"},
		},
	}
	declared := []Declared{
		{Name: "redis", Repository: "repo1", VersionConstraint: "^6.0.0", Enabled: true},
	}

	graph, err := Resolve(context.Background(), declared, src, nil)
	require.NoError(t, err)
	require.Len(t, graph.Roots, 1)
	assert.Equal(t, "6.2.0", graph.Roots[0].Version)
}

func TestResolveFiltersDisabledDependency(t *testing.T) {
	src := &fakeSource{versions: map[string][]string{"repo1/redis": {"1.0.0"}}}
	declared := []Declared{
		{Name: "redis", Repository: "repo1", Enabled: false},
	}

	graph, err := Resolve(context.Background(), declared, src, nil)
	require.NoError(t, err)
	assert.Empty(t, graph.Roots)
}

func TestResolveAlwaysPolicyIgnoresEnabled(t *testing.T) {
	src := &fakeSource{versions: map[string][]string{"repo1/redis": {"1.0.0"}}}
	declared := []Declared{
		{Name: "redis", Repository: "repo1", Enabled: false, ResolvePolicy: ResolvePolicyAlways},
	}

	graph, err := Resolve(context.Background(), declared, src, nil)
	require.NoError(t, err)
	require.Len(t, graph.Roots, 1)
}

func TestResolveNeverPolicyFiltersRegardlessOfEnabled(t *testing.T) {
	src := &fakeSource{versions: map[string][]string{"repo1/redis": {"1.0.0"}}}
	declared := []Declared{
		{Name: "redis", Repository: "repo1", Enabled: true, ResolvePolicy: ResolvePolicyNever},
	}

	graph, err := Resolve(context.Background(), declared, src, nil)
	require.NoError(t, err)
	assert.Empty(t, graph.Roots)
}

func TestResolveWhenEnabledRespectsCondition(t *testing.T) {
	src := &fakeSource{versions: map[string][]string{"repo1/redis": {"1.0.0"}}}
	declared := []Declared{
		{Name: "redis", Repository: "repo1", Enabled: true, Condition: "redis.enabled"},
	}

	falseEval := func(path string) bool { return false }
	graph, err := Resolve(context.Background(), declared, src, falseEval)
	require.NoError(t, err)
	assert.Empty(t, graph.Roots)

	trueEval := func(path string) bool { return true }
	graph, err = Resolve(context.Background(), declared, src, trueEval)
	require.NoError(t, err)
	assert.Len(t, graph.Roots, 1)
}

func TestResolveRecursesIntoTransitiveDependencies(t *testing.T) {
	src := &fakeSource{
		versions: map[string][]string{
			"repo1/app":   {"1.0.0"},
			"repo1/redis": {"6.0.0"},
		},
		deps: map[string][]Declared{
			"repo1/app@1.0.0": {
				{Name: "redis", Repository: "repo1", VersionConstraint: "^6.0.0", Enabled: true},
			},
		},
	}
	declared := []Declared{
		{Name: "app", Repository: "repo1", Enabled: true},
	}

	graph, err := Resolve(context.Background(), declared, src, nil)
	require.NoError(t, err)
	require.Len(t, graph.Roots, 1)
	require.Len(t, graph.Roots[0].Children, 1)
	assert.Equal(t, "redis", graph.Roots[0].Children[0].Name)

	require.Len(t, graph.Order, 2)
	assert.Equal(t, "redis", graph.Order[0].Name, "dependency must install before dependent")
	assert.Equal(t, "app", graph.Order[1].Name)
}

func TestResolveDetectsDiamondConflict(t *testing.T) {
	src := &fakeSource{
		versions: map[string][]string{
			"repo1/a":     {"1.0.0"},
			"repo1/b":     {"1.0.0"},
			"repo1/redis": {"6.0.0", "7.0.0"},
		},
		deps: map[string][]Declared{
			"repo1/a@1.0.0": {
				{Name: "redis", Repository: "repo1", VersionConstraint: "6.0.0", Enabled: true},
			},
			"repo1/b@1.0.0": {
				{Name: "redis", Repository: "repo1", VersionConstraint: "7.0.0", Enabled: true},
			},
		},
	}
	declared := []Declared{
		{Name: "a", Repository: "repo1", Enabled: true},
		{Name: "b", Repository: "repo1", Enabled: true},
	}

	_, err := Resolve(context.Background(), declared, src, nil)
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "redis", conflict.Name)
	assert.Len(t, conflict.Entries, 2)
}

func TestResolveAliasedDependenciesDoNotConflict(t *testing.T) {
	src := &fakeSource{
		versions: map[string][]string{
			"repo1/redis": {"6.0.0"},
		},
	}
	declared := []Declared{
		{Name: "redis", Alias: "cache-primary", Repository: "repo1", VersionConstraint: "6.0.0", Enabled: true},
		{Name: "redis", Alias: "cache-secondary", Repository: "repo1", VersionConstraint: "6.0.0", Enabled: true},
	}

	graph, err := Resolve(context.Background(), declared, src, nil)
	require.NoError(t, err)
	assert.Len(t, graph.Roots, 2)
}

func TestSelectHighestPrefersGreatestSatisfying(t *testing.T) {
	v, err := selectHighest([]string{"1.2.0", "1.3.0", "2.0.0"}, "^1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", v)
}

func TestSelectHighestErrorsWhenNoneSatisfy(t *testing.T) {
	_, err := selectHighest([]string{"1.0.0"}, "^2.0.0")
	assert.Error(t, err)
}
