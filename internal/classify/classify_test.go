package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/shipctl/internal/manifest"
)

func must(t *testing.T, doc string) *manifest.Manifest {
	t.Helper()
	ms, err := manifest.Load([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ms, 1)
	return ms[0]
}

func TestOrderBucketKnownKinds(t *testing.T) {
	ns := must(t, "apiVersion: v1\nkind: Namespace\nmetadata:\n  name: ns1\n")
	cm := must(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cm1\n")
	dep := must(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: app\n")

	classified := Classify([]*manifest.Manifest{dep, cm, ns})
	byKind := map[string]int{}
	for _, c := range classified {
		byKind[c.Manifest.Kind()] = c.OrderBucket
	}
	assert.Equal(t, 0, byKind["Namespace"])
	assert.Equal(t, 20, byKind["ConfigMap"])
	assert.Equal(t, 40, byKind["Deployment"])
}

func TestOrderBucketUnknownKindFallsToEverythingElse(t *testing.T) {
	m := must(t, "apiVersion: example.com/v1\nkind: Widget\nmetadata:\n  name: w1\n")
	classified := Classify([]*manifest.Manifest{m})
	assert.Equal(t, bucketEverythingElse, classified[0].OrderBucket)
}

func TestOrderBucketCustomResourceWithOwnCRDInBatch(t *testing.T) {
	crd := must(t, `
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: widgets.example.com
spec:
  names:
    kind: Widget
`)
	cr := must(t, "apiVersion: example.com/v1\nkind: Widget\nmetadata:\n  name: w1\n")

	classified := Classify([]*manifest.Manifest{cr, crd})
	byKind := map[string]int{}
	for _, c := range classified {
		byKind[c.Manifest.Kind()] = c.OrderBucket
	}
	assert.Equal(t, 5, byKind["CustomResourceDefinition"])
	assert.Equal(t, bucketCustomResource, byKind["Widget"])
}

func TestApplyOrderSortsBySyncWaveThenBucketThenName(t *testing.T) {
	dep := must(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: b-app\n")
	cm := must(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: a-config\n")
	late := must(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: late\n  annotations:\n    sync-wave: \"5\"\n")

	ordered := ApplyOrder([]*manifest.Manifest{late, dep, cm})
	var names []string
	for _, m := range ordered {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"a-config", "b-app", "late"}, names)
}

func TestDeleteOrderIsReverseOfApplyOrder(t *testing.T) {
	dep := must(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: app\n")
	cm := must(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\n")

	applied := ApplyOrder([]*manifest.Manifest{dep, cm})
	deleted := DeleteOrder([]*manifest.Manifest{dep, cm})

	require.Len(t, deleted, 2)
	assert.Equal(t, applied[0].Name(), deleted[1].Name())
	assert.Equal(t, applied[1].Name(), deleted[0].Name())
}

func TestWavesGroupsBySyncWaveAndBucket(t *testing.T) {
	cm := must(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\n")
	secret := must(t, "apiVersion: v1\nkind: Secret\nmetadata:\n  name: sec\n")
	dep := must(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: app\n  annotations:\n    sync-wave: \"1\"\n")

	ordered := ApplyOrder([]*manifest.Manifest{dep, cm, secret})
	waves := Waves(ordered)

	require.Len(t, waves, 3)
	assert.Equal(t, 0, waves[0].SyncWave)
	assert.Equal(t, 20, waves[0].OrderBucket)
	assert.Equal(t, 0, waves[1].SyncWave)
	assert.Equal(t, 21, waves[1].OrderBucket)
	assert.Equal(t, 1, waves[2].SyncWave)
	assert.Len(t, waves[2].Manifests, 1)
}
