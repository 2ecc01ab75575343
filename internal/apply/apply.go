// Package apply implements server-side-apply-style create/update/delete of a
// single manifest against a cluster, live reads, and three-way diff
// computation.
//
// The Client's resource-discovery plumbing (dynamic client + cached
// discovery RESTMapper, retried once via mapper.Reset() on a cache miss)
// resolves an explicit per-call conflict-resolution policy and reports an
// honest Created/Updated/Unchanged/Conflict outcome for the caller (the
// Release Controller) to react to.
package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/utils/ptr"

	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/shiperr"
)

// FieldManagerName identifies this engine's field ownership in server-side
// apply.
const FieldManagerName = "shipctl"

// ErrNotFound is returned by LiveGet and Delete when the resource does not
// exist on the cluster.
var ErrNotFound = errors.New("resource not found")

// ResourceID identifies a single cluster object independent of any Manifest
// that may describe it, so the Release Controller can address resources it
// only knows about from a stored release (no live Manifest in hand).
type ResourceID struct {
	Group     string
	Version   string
	Kind      string
	Namespace string
	Name      string
}

func (id ResourceID) groupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: id.Group, Version: id.Version, Kind: id.Kind}
}

// IDOf converts a Manifest's identity into a ResourceID.
func IDOf(m *manifest.Manifest) ResourceID {
	gvk := m.GroupVersionKind()
	return ResourceID{
		Group:     gvk.Group,
		Version:   gvk.Version,
		Kind:      gvk.Kind,
		Namespace: m.Namespace(),
		Name:      m.Name(),
	}
}

func (id ResourceID) String() string {
	if id.Namespace == "" {
		return fmt.Sprintf("%s/%s, Kind=%s %s", id.Group, id.Version, id.Kind, id.Name)
	}
	return fmt.Sprintf("%s/%s, Kind=%s %s/%s", id.Group, id.Version, id.Kind, id.Namespace, id.Name)
}

// Outcome is the result of an Apply call.
type Outcome string

const (
	OutcomeCreated   Outcome = "Created"
	OutcomeUpdated   Outcome = "Updated"
	OutcomeUnchanged Outcome = "Unchanged"
	OutcomeConflict  Outcome = "Conflict"
)

// DeleteOutcome is the result of a Delete call.
type DeleteOutcome string

const (
	DeleteOutcomeDeleted  DeleteOutcome = "Deleted"
	DeleteOutcomeKept     DeleteOutcome = "Kept"
	DeleteOutcomeNotFound DeleteOutcome = "NotFound"
)

// ApplyOptions controls conflict resolution for a single Apply call.
type ApplyOptions struct {
	// Force, when true, takes ownership of fields currently owned by
	// another field manager instead of surfacing OutcomeConflict.
	Force bool
}

// Client is a cluster adapter: it resolves GVK to GVR via a cached
// discovery RESTMapper (reset once on a miss) and performs SSA
// patch/get/delete through the dynamic client.
type Client struct {
	dyn    dynamic.Interface
	mapper restmapper.ResettableRESTMapper
	log    *slog.Logger
}

// NewClient builds a Client directly from a dynamic client and REST mapper,
// bypassing discovery bring-up. NewForConfig is the production path; tests
// use this to inject a fake dynamic client and a static mapper.
func NewClient(dyn dynamic.Interface, mapper restmapper.ResettableRESTMapper, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{dyn: dyn, mapper: mapper, log: log}
}

// NewForConfig builds a Client from a REST config, wiring the discovery
// client and dynamic client it needs.
func NewForConfig(cfg *rest.Config, log *slog.Logger) (*Client, error) {
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build dynamic client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc))
	return NewClient(dyn, mapper, log), nil
}

// resourceInterface resolves gvk to a dynamic.ResourceInterface, retrying
// once against a freshly reset mapper cache — newly installed CRDs are not
// visible until the discovery cache is reset.
func (c *Client) resourceInterface(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, meta.RESTScope, error) {
	m, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		c.mapper.Reset()
		m, err = c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return nil, nil, shiperr.Wrap(shiperr.KindDiscoveryFailed, fmt.Sprintf("map kind %v", gvk), err)
		}
	}
	if m.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.dyn.Resource(m.Resource).Namespace(namespace), m.Scope, nil
	}
	return c.dyn.Resource(m.Resource), m.Scope, nil
}

// Apply server-side-applies m's object as FieldManagerName. opts.Force
// decides whether fields owned by another manager are taken over or the
// call reports OutcomeConflict.
func (c *Client) Apply(ctx context.Context, m *manifest.Manifest, opts ApplyOptions) (Outcome, *unstructured.Unstructured, error) {
	obj := m.Unstructured()
	ri, _, err := c.resourceInterface(obj.GroupVersionKind(), obj.GetNamespace())
	if err != nil {
		return "", nil, err
	}

	prior, getErr := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	existed := getErr == nil

	objJSON, err := json.Marshal(obj.Object)
	if err != nil {
		return "", nil, fmt.Errorf("marshal manifest %s: %w", m.ID(), err)
	}

	result, err := ri.Patch(ctx, obj.GetName(), types.ApplyPatchType, objJSON, metav1.PatchOptions{
		FieldManager: FieldManagerName,
		Force:        ptr.To(opts.Force),
	})
	if err != nil {
		if apierrors.IsConflict(err) {
			return OutcomeConflict, nil, nil
		}
		return "", nil, shiperr.Wrap(shiperr.KindApplyFailed, fmt.Sprintf("apply %s", m.ID()), err)
	}

	if !existed {
		return OutcomeCreated, result, nil
	}
	if specEqual(prior.Object, result.Object) {
		return OutcomeUnchanged, result, nil
	}
	return OutcomeUpdated, result, nil
}

// CountInstances returns how many live objects of the given kind exist
// cluster-wide, used by the CRD Analyzer's delete-safety guard to refuse
// deleting a CRD that still has custom resource instances.
func (c *Client) CountInstances(ctx context.Context, gvk schema.GroupVersionKind) (int, error) {
	// Namespace("") lists across all namespaces for a namespaced resource.
	ri, _, err := c.resourceInterface(gvk, "")
	if err != nil {
		return 0, err
	}
	list, err := ri.List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, shiperr.Wrap(shiperr.KindDiscoveryFailed, fmt.Sprintf("list instances of %v", gvk), err)
	}
	return len(list.Items), nil
}

// LiveGet fetches the current cluster state of id, or ErrNotFound.
func (c *Client) LiveGet(ctx context.Context, id ResourceID) (*unstructured.Unstructured, error) {
	ri, _, err := c.resourceInterface(id.groupVersionKind(), id.Namespace)
	if err != nil {
		return nil, err
	}
	obj, err := ri.Get(ctx, id.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, shiperr.Wrap(shiperr.KindApplyFailed, fmt.Sprintf("get %s", id), err)
	}
	return obj, nil
}

// Delete removes id from the cluster. When keep is true (the manifest
// carries resource-policy=keep) the call is a no-op that reports Kept
// without touching the API.
func (c *Client) Delete(ctx context.Context, id ResourceID, keep bool) (DeleteOutcome, error) {
	if keep {
		return DeleteOutcomeKept, nil
	}
	ri, _, err := c.resourceInterface(id.groupVersionKind(), id.Namespace)
	if err != nil {
		return "", err
	}
	if err := ri.Delete(ctx, id.Name, metav1.DeleteOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return DeleteOutcomeNotFound, nil
		}
		return "", shiperr.Wrap(shiperr.KindApplyFailed, fmt.Sprintf("delete %s", id), err)
	}
	return DeleteOutcomeDeleted, nil
}

// specEqual reports whether two objects are equivalent once server-managed
// noise is stripped.
func specEqual(a, b map[string]interface{}) bool {
	na := normalize(a)
	nb := normalize(b)
	aj, _ := json.Marshal(na)
	bj, _ := json.Marshal(nb)
	return string(aj) == string(bj)
}

// normalize returns a copy of o with fields that are never meaningful to
// compare (status, managedFields, resourceVersion, uid, generation,
// creationTimestamp, selfLink, annotations) removed.
func normalize(o map[string]interface{}) map[string]interface{} {
	cp := deepCopyMap(o)
	delete(cp, "status")
	if m, ok := cp["metadata"].(map[string]interface{}); ok {
		for _, k := range []string{"managedFields", "resourceVersion", "uid", "creationTimestamp", "generation", "selfLink", "annotations"} {
			delete(m, k)
		}
	}
	return cp
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = deepCopyMap(vv)
		default:
			out[k] = vv
		}
	}
	return out
}
