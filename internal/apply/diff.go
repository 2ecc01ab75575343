package apply

import (
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/hashmap-kz/shipctl/internal/manifest"
)

// ChangeType classifies how a single resource's desired state moved between
// two revisions.
type ChangeType string

const (
	ChangeAdded     ChangeType = "Added"
	ChangeRemoved   ChangeType = "Removed"
	ChangeModified  ChangeType = "Modified"
	ChangeUnchanged ChangeType = "Unchanged"
)

// ResourceChange is one entry of a ChangeSet.
type ResourceChange struct {
	ID   manifest.ID
	Type ChangeType
	// HasDrift is set when the live object's normalized spec no longer
	// matches the previous revision's, for a resource this diff otherwise
	// considers Unchanged — i.e. something other than this controller
	// mutated it out-of-band since the last apply.
	HasDrift bool
}

// ChangeSet is the ordered (by ID string) result of Diff.
type ChangeSet []ResourceChange

// Diff computes a three-way comparison: prev (the
// previously-deployed revision's manifests), next (the manifests about to be
// applied), and live (the cluster's current state of the resources prev
// described, keyed by ID). A resource present in both prev and next is
// Modified when next differs from prev, and additionally flagged HasDrift
// when live differs from prev for fields this diff is not already reporting
// as Modified — i.e. someone/something changed the live object without
// going through a release.
func Diff(prev, next []*manifest.Manifest, live map[manifest.ID]*unstructured.Unstructured) ChangeSet {
	prevByID := indexByID(prev)
	nextByID := indexByID(next)

	var out ChangeSet

	for id, nm := range nextByID {
		pm, existedBefore := prevByID[id]
		if !existedBefore {
			out = append(out, ResourceChange{ID: id, Type: ChangeAdded})
			continue
		}

		modified := !specEqual(pm.Unstructured().Object, nm.Unstructured().Object)
		change := ResourceChange{ID: id, Type: ChangeUnchanged}
		if modified {
			change.Type = ChangeModified
		}

		if liveObj, ok := live[id]; ok && !modified {
			if !specEqual(pm.Unstructured().Object, liveObj.Object) {
				change.HasDrift = true
			}
		}
		out = append(out, change)
	}

	for id := range prevByID {
		if _, stillPresent := nextByID[id]; !stillPresent {
			out = append(out, ResourceChange{ID: id, Type: ChangeRemoved})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func indexByID(ms []*manifest.Manifest) map[manifest.ID]*manifest.Manifest {
	out := make(map[manifest.ID]*manifest.Manifest, len(ms))
	for _, m := range ms {
		out[m.ID()] = m
	}
	return out
}
