// Package classify assigns a role, order bucket, and sync wave to each
// manifest in a batch, and produces apply/delete orderings from those
// assignments.
package classify

import (
	"sort"

	"github.com/hashmap-kz/shipctl/internal/manifest"
)

// bucketByKind is the static kind -> order-bucket table. Kinds not listed
// fall into the "everything else" bucket (80).
var bucketByKind = map[string]int{
	"Namespace": 0,

	"CustomResourceDefinition": 5,

	"ServiceAccount":     10,
	"ClusterRole":        11,
	"ClusterRoleBinding": 12,
	"Role":               13,
	"RoleBinding":        14,

	"ConfigMap": 20,
	"Secret":    21,

	"Service": 30,
	"Ingress": 34,

	"Deployment":  40,
	"StatefulSet": 41,
	"DaemonSet":   42,

	"Job":     50,
	"CronJob": 51,

	"HorizontalPodAutoscaler": 60,
	"PodDisruptionBudget":     61,
}

const (
	bucketEverythingElse = 80
	bucketCustomResource = 90
)

// Classified pairs a Manifest with the order/role information computed for
// it within a specific batch (the bucket-90 rule needs to see the whole
// batch to know which CRD kinds are being installed alongside it).
type Classified struct {
	Manifest    *manifest.Manifest
	Role        manifest.Role
	OrderBucket int
	SyncWave    int
}

// Classify assigns an order bucket to every manifest in ms. It sets each
// manifest.Manifest's OrderBucket field in place (Role and SyncWave are
// already set by manifest.New and are copied as they are) and also returns
// the Classified view used for ordering.
func Classify(ms []*manifest.Manifest) []Classified {
	crdKinds := crdKindsInBatch(ms)

	out := make([]Classified, 0, len(ms))
	for _, m := range ms {
		bucket := orderBucket(m, crdKinds)
		m.OrderBucket = bucket
		out = append(out, Classified{
			Manifest:    m,
			Role:        m.Role,
			OrderBucket: bucket,
			SyncWave:    m.SyncWave,
		})
	}
	return out
}

// crdKindsInBatch returns the set of custom-resource Kind names for CRDs
// present in this batch, used to detect "custom resource whose CRD is also
// being installed" (bucket 90).
func crdKindsInBatch(ms []*manifest.Manifest) map[string]bool {
	kinds := make(map[string]bool)
	for _, m := range ms {
		if !m.IsCRD() {
			continue
		}
		if kind, ok := crdSpecKind(m); ok {
			kinds[kind] = true
		}
	}
	return kinds
}

// crdSpecKind reads spec.names.kind off a CustomResourceDefinition manifest.
func crdSpecKind(m *manifest.Manifest) (string, bool) {
	obj := m.Unstructured().Object
	spec, ok := obj["spec"].(map[string]interface{})
	if !ok {
		return "", false
	}
	names, ok := spec["names"].(map[string]interface{})
	if !ok {
		return "", false
	}
	kind, ok := names["kind"].(string)
	return kind, ok
}

func orderBucket(m *manifest.Manifest, crdKinds map[string]bool) int {
	if b, ok := bucketByKind[m.Kind()]; ok {
		return b
	}
	if crdKinds[m.Kind()] {
		return bucketCustomResource
	}
	return bucketEverythingElse
}

// byApplyOrder sorts Classified entries for install/apply: syncWave asc,
// then orderBucket asc, then (namespace,name) lexicographic.
type byApplyOrder []Classified

func (s byApplyOrder) Len() int      { return len(s) }
func (s byApplyOrder) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byApplyOrder) Less(i, j int) bool {
	a, b := s[i], s[j]
	if a.SyncWave != b.SyncWave {
		return a.SyncWave < b.SyncWave
	}
	if a.OrderBucket != b.OrderBucket {
		return a.OrderBucket < b.OrderBucket
	}
	if a.Manifest.Namespace() != b.Manifest.Namespace() {
		return a.Manifest.Namespace() < b.Manifest.Namespace()
	}
	return a.Manifest.Name() < b.Manifest.Name()
}

// ApplyOrder returns ms sorted into the effective apply order: syncWave
// ascending, then orderBucket ascending, then (ns,name).
func ApplyOrder(ms []*manifest.Manifest) []*manifest.Manifest {
	classified := Classify(ms)
	sort.Stable(byApplyOrder(classified))
	out := make([]*manifest.Manifest, len(classified))
	for i, c := range classified {
		out[i] = c.Manifest
	}
	return out
}

// DeleteOrder returns ms sorted into the reverse of the apply order.
func DeleteOrder(ms []*manifest.Manifest) []*manifest.Manifest {
	applied := ApplyOrder(ms)
	out := make([]*manifest.Manifest, len(applied))
	for i, m := range applied {
		out[len(applied)-1-i] = m
	}
	return out
}

// Wave groups manifests already in apply order by (syncWave, orderBucket),
// preserving order. This is the unit the Release Controller applies in
// parallel and the Health Evaluator waits on as a batch.
type Wave struct {
	SyncWave    int
	OrderBucket int
	Manifests   []*manifest.Manifest
}

// Waves partitions an apply-ordered manifest slice into waves.
func Waves(ordered []*manifest.Manifest) []Wave {
	var waves []Wave
	for _, m := range ordered {
		if len(waves) > 0 {
			last := &waves[len(waves)-1]
			if last.SyncWave == m.SyncWave && last.OrderBucket == m.OrderBucket {
				last.Manifests = append(last.Manifests, m)
				continue
			}
		}
		waves = append(waves, Wave{
			SyncWave:    m.SyncWave,
			OrderBucket: m.OrderBucket,
			Manifests:   []*manifest.Manifest{m},
		})
	}
	return waves
}
