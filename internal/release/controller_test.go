package release

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/api/meta/testrestmapper"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/hashmap-kz/shipctl/internal/apply"
	"github.com/hashmap-kz/shipctl/internal/health"
	"github.com/hashmap-kz/shipctl/internal/hook"
	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/shiperr"
	"github.com/hashmap-kz/shipctl/internal/store"
)

// memStore is a hand-rolled in-memory Store, standing in for a real
// backend so the Controller's state-machine logic can be tested without a
// cluster or filesystem. Guarded by a mutex purely so `go test -race`
// doesn't flag concurrent History/Save calls from parallel subtests.
type memStore struct {
	mu   sync.Mutex
	revs map[string]map[int]*Release
}

func newMemStore() *memStore {
	return &memStore{revs: map[string]map[int]*Release{}}
}

func memKey(name, namespace string) string { return namespace + "/" + name }

func (s *memStore) Save(_ context.Context, r *Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(r.Name, r.Namespace)
	if s.revs[k] == nil {
		s.revs[k] = map[int]*Release{}
	}
	if existing, ok := s.revs[k][r.Revision]; ok && !existing.State.IsTerminal() && existing.State == r.State {
		return store.ErrConflict
	}
	cp := *r
	s.revs[k][r.Revision] = &cp
	return nil
}

func (s *memStore) Load(_ context.Context, name, namespace string, revision int) (*Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.revs[memKey(name, namespace)][revision]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) History(_ context.Context, name, namespace string) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Summary
	for rev, r := range s.revs[memKey(name, namespace)] {
		_ = rev
		out = append(out, r.Summary())
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Revision < out[i].Revision {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) List(_ context.Context, _ string) ([]Summary, error) { return nil, nil }

func (s *memStore) Delete(_ context.Context, name, namespace string, revision int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.revs[memKey(name, namespace)], revision)
	return nil
}

func (s *memStore) DeleteAll(_ context.Context, name, namespace string, keepHistory bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keepHistory {
		return nil
	}
	delete(s.revs, memKey(name, namespace))
	return nil
}

func newTestController(t *testing.T) (*Controller, *memStore) {
	t.Helper()
	s := newMemStore()
	c := NewController(nil, nil, nil, s, nil)
	return c, s
}

// fakeResettableMapper adapts a static meta.RESTMapper into
// restmapper.ResettableRESTMapper so it can stand in for the cached
// discovery mapper apply.NewClient expects.
type fakeResettableMapper struct {
	meta.RESTMapper
}

func (fakeResettableMapper) Reset() {}

// newWiredTestController builds a Controller backed by a fake dynamic
// client and a static RESTMapper so Install/Upgrade/Rollback actually drive
// applyWaves end to end: resources are really created/patched/read against
// an in-memory object tracker rather than a live cluster. The health
// evaluator never touches the network here because every test manifest
// carries health-check=none, so WaitReady resolves without polling.
func newWiredTestController(t *testing.T) (*Controller, *memStore) {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))

	dyn := dynamicfake.NewSimpleDynamicClient(scheme)
	mapper := fakeResettableMapper{testrestmapper.TestOnlyStaticRESTMapper(scheme)}

	applyClient := apply.NewClient(dyn, mapper, slog.Default())
	crClient := ctrlfake.NewClientBuilder().WithScheme(scheme).Build()
	evaluator := health.NewFromReader(crClient, mapper, slog.Default())
	hooks := hook.NewExecutor(applyClient, evaluator, nil, slog.Default())

	s := newMemStore()
	c := NewController(applyClient, evaluator, hooks, s, slog.Default())
	return c, s
}

func configMapManifest(t *testing.T, name, value string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.New(&unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "ns1",
			"annotations": map[string]interface{}{
				manifest.AnnotationHealthCheck: string(manifest.HealthCheckNone),
			},
		},
		"data": map[string]interface{}{"value": value},
	}})
	require.NoError(t, err)
	return m
}

func TestInstallThenUpgradeDrivesApplyWaves(t *testing.T) {
	c, s := newWiredTestController(t)
	ctx := context.Background()

	initial := []*manifest.Manifest{configMapManifest(t, "cfg-a", "v1")}
	installed, err := c.Install(ctx, "demo", "ns1", initial, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateDeployed, installed.State)
	assert.Equal(t, 1, installed.Revision)

	live, err := c.apply.LiveGet(ctx, apply.IDOf(initial[0]))
	require.NoError(t, err)
	value, _, err := unstructured.NestedString(live.Object, "data", "value")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)

	next := []*manifest.Manifest{configMapManifest(t, "cfg-a", "v2")}
	upgraded, err := c.Upgrade(ctx, "demo", "ns1", next, UpgradeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateDeployed, upgraded.State)
	assert.Equal(t, 2, upgraded.Revision)

	live, err = c.apply.LiveGet(ctx, apply.IDOf(next[0]))
	require.NoError(t, err)
	value, _, err = unstructured.NestedString(live.Object, "data", "value")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)

	prevRevision, err := s.Load(ctx, "demo", "ns1", 1)
	require.NoError(t, err)
	assert.Equal(t, StateSuperseded, prevRevision.State)
}

func TestUpgradeAtomicRollsBackOnWaveFailure(t *testing.T) {
	c, s := newWiredTestController(t)
	ctx := context.Background()

	initial := []*manifest.Manifest{configMapManifest(t, "cfg-a", "v1")}
	_, err := c.Install(ctx, "demo", "ns1", initial, InstallOptions{})
	require.NoError(t, err)

	badManifest, err := manifest.New(&unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "NoSuchKind",
		"metadata": map[string]interface{}{
			"name":      "cfg-b",
			"namespace": "ns1",
		},
	}})
	require.NoError(t, err)

	_, err = c.Upgrade(ctx, "demo", "ns1", []*manifest.Manifest{badManifest}, UpgradeOptions{Atomic: true})
	require.Error(t, err)

	hist, err := s.History(ctx, "demo", "ns1")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.True(t, hist[1].State.IsTerminal(), "failed upgrade revision should end terminal, got %s", hist[1].State)
	assert.Equal(t, StateDeployed, hist[2].State)
	assert.Equal(t, 3, hist[2].Revision)

	live, err := c.apply.LiveGet(ctx, apply.IDOf(initial[0]))
	require.NoError(t, err)
	value, _, err := unstructured.NestedString(live.Object, "data", "value")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)
}

func TestStatusReturnsLatestRevision(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Release{Name: "demo", Namespace: "ns1", Revision: 1, State: StateDeployed}))
	require.NoError(t, s.Save(ctx, &Release{Name: "demo", Namespace: "ns1", Revision: 2, State: StateSuperseded}))
	require.NoError(t, s.Save(ctx, &Release{Name: "demo", Namespace: "ns1", Revision: 3, State: StateDeployed}))

	r, err := c.Status(ctx, "demo", "ns1")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Revision)
}

func TestStatusErrorsWhenNoRelease(t *testing.T) {
	c, _ := newTestController(t)
	_, err := c.Status(context.Background(), "missing", "ns1")
	assert.True(t, shiperr.IsKind(err, shiperr.KindStoreNotFound))
}

func TestRecoverReturnsTerminalRevisionUnchanged(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Release{Name: "demo", Namespace: "ns1", Revision: 1, State: StateDeployed}))

	r, err := c.Recover(ctx, "demo", "ns1")
	require.NoError(t, err)
	assert.Equal(t, StateDeployed, r.State)
}

func TestRecoverRefusesWithinGracePeriod(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Release{
		Name: "demo", Namespace: "ns1", Revision: 1,
		State: StatePendingInstall, UpdatedAt: now(),
	}))

	_, err := c.Recover(ctx, "demo", "ns1")
	assert.True(t, shiperr.IsKind(err, shiperr.KindTimeout))
}

func TestRecoverForceFailsStaleRevision(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Release{
		Name: "demo", Namespace: "ns1", Revision: 1,
		State: StatePendingInstall, UpdatedAt: now().Add(-2 * staleThreshold),
	}))

	r, err := c.Recover(ctx, "demo", "ns1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, r.State)

	reloaded, err := s.Load(ctx, "demo", "ns1", 1)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, reloaded.State)
}

func TestInstallRefusesWhenReleaseAlreadyExists(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Release{Name: "demo", Namespace: "ns1", Revision: 1, State: StateDeployed}))

	_, err := c.Install(ctx, "demo", "ns1", nil, InstallOptions{})
	require.Error(t, err)
	assert.True(t, shiperr.IsKind(err, shiperr.KindStoreConflict))
}

func TestInstallAllowedAfterPriorUninstall(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Release{Name: "demo", Namespace: "ns1", Revision: 1, State: StateUninstalled}))

	existing, err := s.History(ctx, "demo", "ns1")
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, StateUninstalled, existing[0].State)

	r, err := c.Install(ctx, "demo", "ns1", nil, InstallOptions{DisableHooks: true})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Revision)
	assert.Equal(t, StateDeployed, r.State)
}

func TestFailPersistsDescriptionAndReturnsCause(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()
	r := &Release{Name: "demo", Namespace: "ns1", Revision: 1, State: StatePendingInstall}

	_, err := c.fail(ctx, r, assertError("boom"))
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())

	loaded, loadErr := s.Load(ctx, "demo", "ns1", 1)
	require.NoError(t, loadErr)
	assert.Equal(t, StateFailed, loaded.State)
	assert.Equal(t, "boom", loaded.Description)
}

func TestNormalManifestsFiltersHooks(t *testing.T) {
	normal := newManifest(t, "ConfigMap", "a", "")
	hookM := newManifest(t, "Job", "b", "pre-install")

	out := normalManifests([]*manifest.Manifest{normal, hookM})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Name())
}

func TestCRDInstanceGVKReadsServedVersion(t *testing.T) {
	crdManifest, err := manifest.New(&unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apiextensions.k8s.io/v1",
		"kind":       "CustomResourceDefinition",
		"metadata":   map[string]interface{}{"name": "widgets.example.com"},
		"spec": map[string]interface{}{
			"group": "example.com",
			"names": map[string]interface{}{"kind": "Widget"},
			"versions": []interface{}{
				map[string]interface{}{"name": "v1alpha1", "served": false},
				map[string]interface{}{"name": "v1", "served": true},
			},
		},
	}})
	require.NoError(t, err)

	gvk, ok := crdInstanceGVK(crdManifest)
	require.True(t, ok)
	assert.Equal(t, "example.com", gvk.Group)
	assert.Equal(t, "v1", gvk.Version)
	assert.Equal(t, "Widget", gvk.Kind)
}

func newManifest(t *testing.T, kind, name, hookAnnotation string) *manifest.Manifest {
	t.Helper()
	obj := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       kind,
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "ns1",
		},
	}
	if hookAnnotation != "" {
		meta := obj["metadata"].(map[string]interface{})
		meta["annotations"] = map[string]interface{}{
			manifest.AnnotationHook: hookAnnotation,
		}
	}
	m, err := manifest.New(&unstructured.Unstructured{Object: obj})
	require.NoError(t, err)
	return m
}

type assertError string

func (e assertError) Error() string { return string(e) }
