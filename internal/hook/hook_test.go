package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/shipctl/internal/manifest"
)

func mustManifest(t *testing.T, doc string) *manifest.Manifest {
	t.Helper()
	ms, err := manifest.Load([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ms, 1)
	return ms[0]
}

func TestGroupByWeightOrdersAscendingThenByName(t *testing.T) {
	a := mustManifest(t, "apiVersion: batch/v1\nkind: Job\nmetadata:\n  name: b\n  annotations:\n    hook: pre-install\n    hook-weight: \"5\"\n")
	b := mustManifest(t, "apiVersion: batch/v1\nkind: Job\nmetadata:\n  name: a\n  annotations:\n    hook: pre-install\n    hook-weight: \"5\"\n")
	c := mustManifest(t, "apiVersion: batch/v1\nkind: Job\nmetadata:\n  name: first\n  annotations:\n    hook: pre-install\n    hook-weight: \"-1\"\n")

	groups := groupByWeight([]*manifest.Manifest{a, b, c})
	require.Len(t, groups, 2)
	assert.Equal(t, "first", groups[0][0].Name())
	require.Len(t, groups[1], 2)
	assert.Equal(t, "a", groups[1][0].Name())
	assert.Equal(t, "b", groups[1][1].Name())
}

func TestGroupByWeightSingleGroupWhenAllDefaultWeight(t *testing.T) {
	a := mustManifest(t, "apiVersion: batch/v1\nkind: Job\nmetadata:\n  name: a\n  annotations:\n    hook: pre-install\n")
	b := mustManifest(t, "apiVersion: batch/v1\nkind: Job\nmetadata:\n  name: b\n  annotations:\n    hook: pre-install\n")

	groups := groupByWeight([]*manifest.Manifest{b, a})
	require.Len(t, groups, 1)
	assert.Equal(t, "a", groups[0][0].Name())
	assert.Equal(t, "b", groups[0][1].Name())
}
