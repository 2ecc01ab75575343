// Package release also hosts the Release Controller: the state machine that
// drives install/upgrade/rollback/uninstall/status/recover by composing the
// Classifier, Apply Engine, Health Evaluator, Hook Executor, CRD Analyzer,
// and Release Store.
//
// The top-level shape of each operation — build a plan, execute, wait, roll
// back on failure — stays the same whether it's a first install or a full
// lifecycle transition.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hashmap-kz/shipctl/internal/apply"
	"github.com/hashmap-kz/shipctl/internal/classify"
	"github.com/hashmap-kz/shipctl/internal/crd"
	"github.com/hashmap-kz/shipctl/internal/health"
	"github.com/hashmap-kz/shipctl/internal/hook"
	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/shiperr"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Store is the narrow persistence interface a release's revision history
// needs. It is declared here, not in internal/store, so that package can
// import release's types without creating an import cycle; internal/store's
// backends (file/configmap/secret) satisfy this interface structurally.
type Store interface {
	Save(ctx context.Context, r *Release) error
	Load(ctx context.Context, name, namespace string, revision int) (*Release, error)
	List(ctx context.Context, namespace string) ([]Summary, error)
	History(ctx context.Context, name, namespace string) ([]Summary, error)
	Delete(ctx context.Context, name, namespace string, revision int) error
	DeleteAll(ctx context.Context, name, namespace string, keepHistory bool) error
}

// defaultPollInterval is how often wave health waits and CRD-establishment
// waits re-check cluster state.
const defaultPollInterval = 2 * time.Second

// now is the Controller's clock. Stored timestamps are always UTC.
func now() time.Time { return time.Now().UTC() }

// staleThreshold is how long a Pending-*/Uninstalling revision may sit
// untouched before Recover forces it to Failed.
const staleThreshold = 10 * time.Minute

// Controller is the Release Controller. It owns no cluster credentials of
// its own beyond what apply.Client/health.Evaluator/hook.Executor were built
// with; it only sequences calls against them and persists outcomes.
type Controller struct {
	apply *apply.Client
	evalr *health.Evaluator
	hooks *hook.Executor
	store Store
	log   *slog.Logger
}

// NewController wires the five downstream components into a Controller.
func NewController(applyClient *apply.Client, evaluator *health.Evaluator, hookExecutor *hook.Executor, releaseStore Store, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{apply: applyClient, evalr: evaluator, hooks: hookExecutor, store: releaseStore, log: log}
}

// Install creates the first revision of name in namespace, moving it through
// (none) -> Pending-Install -> pre-install -> apply(CRDs, waves, waits) ->
// post-install -> Deployed. Failure transitions to Failed; under Atomic the
// Controller also cleans up whatever it already applied.
func (c *Controller) Install(ctx context.Context, name, namespace string, manifests []*manifest.Manifest, opts InstallOptions) (*Release, error) {
	existing, err := c.store.History(ctx, name, namespace)
	if err != nil {
		return nil, fmt.Errorf("check existing history: %w", err)
	}
	if len(existing) > 0 && existing[len(existing)-1].State != StateUninstalled {
		return nil, shiperr.New(shiperr.KindStoreConflict,
			fmt.Sprintf("release %s/%s already exists, use Upgrade", namespace, name))
	}

	timeout, waveTimeout := withDefaults(opts.Timeout, opts.WaveTimeout)
	revision := 1
	if len(existing) > 0 {
		revision = existing[len(existing)-1].Revision + 1
	}

	r := &Release{
		Name: name, Namespace: namespace, Revision: revision,
		State:         StatePendingInstall,
		CreatedAt:     now(), UpdatedAt: now(),
		Manifests:     manifests,
		PackRef:       opts.PackRef,
		EngineVersion: opts.EngineVersion,
	}
	if err := c.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist pending install: %w", err)
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPreInstall, manifests, timeout, hook.FailurePolicyFail); err != nil {
			return c.fail(ctx, r, fmt.Errorf("pre-install hook: %w", err))
		}
	}

	applied, err := c.applyWaves(ctx, normalManifests(manifests), timeout, waveTimeout, opts.Force)
	if err != nil {
		if opts.Atomic {
			c.cleanupApplied(ctx, applied)
		}
		return c.fail(ctx, r, fmt.Errorf("apply: %w", err))
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPostInstall, manifests, timeout, hook.FailurePolicyFail); err != nil {
			if opts.Atomic {
				c.cleanupApplied(ctx, applied)
			}
			return c.fail(ctx, r, fmt.Errorf("post-install hook: %w", err))
		}
	}

	r.State = StateDeployed
	r.UpdatedAt = now()
	if err := c.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist deployed: %w", err)
	}
	return r, nil
}

// Upgrade creates a new revision over an existing Deployed release, moving
// it through: prior Deployed -> new Pending-Upgrade -> pre-upgrade ->
// apply(diff) -> post-upgrade -> new Deployed, previous Superseded. Under
// Atomic, any failure triggers an immediate Rollback to the previous
// revision.
func (c *Controller) Upgrade(ctx context.Context, name, namespace string, manifests []*manifest.Manifest, opts UpgradeOptions) (*Release, error) {
	hist, err := c.store.History(ctx, name, namespace)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(hist) == 0 {
		return nil, shiperr.New(shiperr.KindStoreNotFound, fmt.Sprintf("no release %s/%s to upgrade, use Install", namespace, name))
	}
	prevSummary := hist[len(hist)-1]
	prev, err := c.store.Load(ctx, name, namespace, prevSummary.Revision)
	if err != nil {
		return nil, fmt.Errorf("load previous revision: %w", err)
	}

	timeout, waveTimeout := withDefaults(opts.Timeout, opts.WaveTimeout)
	r := &Release{
		Name: name, Namespace: namespace, Revision: prev.Revision + 1,
		State:         StatePendingUpgrade,
		CreatedAt:     now(), UpdatedAt: now(),
		Manifests:     manifests,
		PackRef:       prev.PackRef,
		EngineVersion: prev.EngineVersion,
	}
	if err := c.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist pending upgrade: %w", err)
	}

	upgradeErr := c.runUpgrade(ctx, prev, r, manifests, opts, timeout, waveTimeout)
	if upgradeErr != nil {
		if _, failErr := c.fail(ctx, r, upgradeErr); failErr != nil {
			return nil, failErr
		}
		if opts.Atomic {
			if _, rbErr := c.Rollback(ctx, name, namespace, RollbackOptions{
				TargetRevision: prev.Revision, Timeout: timeout, WaveTimeout: waveTimeout, Force: opts.Force,
			}); rbErr != nil {
				return nil, fmt.Errorf("upgrade failed (%w) and automatic rollback also failed: %v", upgradeErr, rbErr)
			}
		}
		return nil, upgradeErr
	}

	r.State = StateDeployed
	r.UpdatedAt = now()
	if err := c.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist deployed: %w", err)
	}

	prevRelease, err := c.store.Load(ctx, name, namespace, prev.Revision)
	if err == nil {
		prevRelease.State = StateSuperseded
		prevRelease.UpdatedAt = now()
		_ = c.store.Save(ctx, prevRelease)
	}
	return r, nil
}

func (c *Controller) runUpgrade(ctx context.Context, prev, r *Release, manifests []*manifest.Manifest, opts UpgradeOptions, timeout, waveTimeout time.Duration) error {
	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPreUpgrade, manifests, timeout, hook.FailurePolicyFail); err != nil {
			return fmt.Errorf("pre-upgrade hook: %w", err)
		}
	}

	live := c.liveState(ctx, normalManifests(prev.Manifests))
	changes := apply.Diff(normalManifests(prev.Manifests), normalManifests(manifests), live)

	byID := indexNormalManifests(manifests)
	prevByID := indexNormalManifests(prev.Manifests)

	var toApply []*manifest.Manifest
	for _, change := range changes {
		switch change.Type {
		case apply.ChangeAdded, apply.ChangeModified:
			if m, ok := byID[change.ID]; ok {
				toApply = append(toApply, m)
			}
		case apply.ChangeRemoved:
			if m, ok := prevByID[change.ID]; ok {
				if _, err := c.apply.Delete(ctx, apply.IDOf(m), m.IsKept()); err != nil {
					return fmt.Errorf("delete removed resource %s: %w", change.ID, err)
				}
			}
		case apply.ChangeUnchanged:
			if change.HasDrift {
				c.log.Warn("drift detected on unchanged resource, not correcting", "resource", change.ID)
			}
		}
	}

	if _, err := c.applyWaves(ctx, toApply, timeout, waveTimeout, opts.Force); err != nil {
		return fmt.Errorf("apply diff: %w", err)
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPostUpgrade, manifests, timeout, hook.FailurePolicyFail); err != nil {
			return fmt.Errorf("post-upgrade hook: %w", err)
		}
	}
	return nil
}

// Rollback makes targetRevision's frozen manifests the desired state again,
// recorded as a brand new revision (Helm/werf's "rollback creates a new
// revision" rule, not an in-place rewind).
func (c *Controller) Rollback(ctx context.Context, name, namespace string, opts RollbackOptions) (*Release, error) {
	hist, err := c.store.History(ctx, name, namespace)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(hist) == 0 {
		return nil, shiperr.New(shiperr.KindStoreNotFound, fmt.Sprintf("no history for release %s/%s", namespace, name))
	}

	target := opts.TargetRevision
	if target == 0 {
		if len(hist) < 2 {
			return nil, shiperr.New(shiperr.KindStoreNotFound, "no prior revision to roll back to")
		}
		target = hist[len(hist)-2].Revision
	}
	targetRelease, err := c.store.Load(ctx, name, namespace, target)
	if err != nil {
		return nil, fmt.Errorf("load target revision %d: %w", target, err)
	}

	current := hist[len(hist)-1]
	timeout, waveTimeout := withDefaults(opts.Timeout, opts.WaveTimeout)

	r := &Release{
		Name: name, Namespace: namespace, Revision: current.Revision + 1,
		State:         StatePendingRollback,
		CreatedAt:     now(), UpdatedAt: now(),
		Manifests:     targetRelease.Manifests,
		PackRef:       targetRelease.PackRef,
		EngineVersion: targetRelease.EngineVersion,
		Description:   fmt.Sprintf("rollback to revision %d", target),
	}
	if err := c.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist pending rollback: %w", err)
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPreRollback, r.Manifests, timeout, hook.FailurePolicyFail); err != nil {
			return c.fail(ctx, r, fmt.Errorf("pre-rollback hook: %w", err))
		}
	}

	applied, err := c.applyWaves(ctx, normalManifests(r.Manifests), timeout, waveTimeout, opts.Force)
	if err != nil {
		c.cleanupApplied(ctx, applied)
		return c.fail(ctx, r, fmt.Errorf("apply: %w", err))
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPostRollback, r.Manifests, timeout, hook.FailurePolicyFail); err != nil {
			return c.fail(ctx, r, fmt.Errorf("post-rollback hook: %w", err))
		}
	}

	r.State = StateDeployed
	r.UpdatedAt = now()
	if err := c.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist deployed: %w", err)
	}

	if prevDeployed, err := c.store.Load(ctx, name, namespace, current.Revision); err == nil {
		prevDeployed.State = StateSuperseded
		prevDeployed.UpdatedAt = now()
		_ = c.store.Save(ctx, prevDeployed)
	}
	return r, nil
}

// Uninstall tears down the latest revision of name/namespace, moving it
// through: Deployed -> Uninstalling -> pre-delete -> delete in reverse order
// (respecting resource-policy=keep) -> post-delete -> store deletion (or a
// final Uninstalled marker under KeepHistory).
func (c *Controller) Uninstall(ctx context.Context, name, namespace string, opts UninstallOptions) error {
	hist, err := c.store.History(ctx, name, namespace)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(hist) == 0 {
		return shiperr.New(shiperr.KindStoreNotFound, fmt.Sprintf("no release %s/%s", namespace, name))
	}
	r, err := c.store.Load(ctx, name, namespace, hist[len(hist)-1].Revision)
	if err != nil {
		return fmt.Errorf("load current revision: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	r.State = StateUninstalling
	r.UpdatedAt = now()
	if err := c.store.Save(ctx, r); err != nil {
		return fmt.Errorf("persist uninstalling: %w", err)
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPreDelete, r.Manifests, timeout, hook.FailurePolicyContinue); err != nil {
			c.log.Warn("pre-delete hook failed, continuing uninstall", "release", name, "error", err)
		}
	}

	for _, m := range classify.DeleteOrder(normalManifests(r.Manifests)) {
		if m.IsCRD() {
			if err := c.uninstallCRD(ctx, m, opts); err != nil {
				return err
			}
			continue
		}
		if _, err := c.apply.Delete(ctx, apply.IDOf(m), m.IsKept()); err != nil {
			return fmt.Errorf("delete %s: %w", m.ID(), err)
		}
	}

	if !opts.DisableHooks {
		if _, err := c.hooks.ExecutePhase(ctx, manifest.HookPostDelete, r.Manifests, timeout, hook.FailurePolicyContinue); err != nil {
			c.log.Warn("post-delete hook failed", "release", name, "error", err)
		}
	}

	if opts.KeepHistory {
		r.State = StateUninstalled
		r.UpdatedAt = now()
		return c.store.Save(ctx, r)
	}
	return c.store.DeleteAll(ctx, name, namespace, false)
}

func (c *Controller) uninstallCRD(ctx context.Context, m *manifest.Manifest, opts UninstallOptions) error {
	policy := m.CRDPolicy()
	if !opts.DeleteCRDs || !crd.AllowDelete(policy) {
		return nil
	}
	instanceGVK, ok := crdInstanceGVK(m)
	count := 0
	if ok {
		var err error
		count, err = c.apply.CountInstances(ctx, instanceGVK)
		if err != nil {
			return fmt.Errorf("count instances of CRD %s: %w", m.ID(), err)
		}
	}
	if err := crd.DeleteSafety(count, opts.CRDConfirmToken); err != nil {
		return err
	}
	_, err := c.apply.Delete(ctx, apply.IDOf(m), false)
	if err != nil {
		return fmt.Errorf("delete CRD %s: %w", m.ID(), err)
	}
	return nil
}

// Status returns the latest revision of name/namespace as currently stored.
func (c *Controller) Status(ctx context.Context, name, namespace string) (*Release, error) {
	hist, err := c.store.History(ctx, name, namespace)
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, shiperr.New(shiperr.KindStoreNotFound, fmt.Sprintf("no release %s/%s", namespace, name))
	}
	return c.store.Load(ctx, name, namespace, hist[len(hist)-1].Revision)
}

// Recover forces a stuck non-terminal revision into a consistent state: any
// Pending-*/Uninstalling revision older than staleThreshold is marked Failed,
// leaving the prior Deployed revision (if any) authoritative.
func (c *Controller) Recover(ctx context.Context, name, namespace string) (*Release, error) {
	hist, err := c.store.History(ctx, name, namespace)
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, shiperr.New(shiperr.KindStoreNotFound, fmt.Sprintf("no release %s/%s", namespace, name))
	}
	latest := hist[len(hist)-1]
	if !latest.State.IsPending() {
		r, err := c.store.Load(ctx, name, namespace, latest.Revision)
		return r, err
	}
	if now().Sub(latest.UpdatedAt) < staleThreshold {
		return nil, shiperr.New(shiperr.KindTimeout,
			fmt.Sprintf("revision %d is still within the staleness grace period", latest.Revision))
	}

	r, err := c.store.Load(ctx, name, namespace, latest.Revision)
	if err != nil {
		return nil, err
	}
	r.State = StateFailed
	r.Description = "force-recovered from a stuck non-terminal state"
	r.UpdatedAt = now()
	if err := c.store.Save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// fail persists r as Failed with err's message recorded as the revision
// description and returns err unchanged so callers can propagate it.
func (c *Controller) fail(ctx context.Context, r *Release, cause error) (*Release, error) {
	r.State = StateFailed
	r.Description = cause.Error()
	r.UpdatedAt = now()
	if saveErr := c.store.Save(ctx, r); saveErr != nil {
		return nil, fmt.Errorf("%w (and failed to persist failure: %v)", cause, saveErr)
	}
	return nil, cause
}

// applyWaves runs classify.Waves over ms in apply order. Within a wave,
// resources are applied concurrently; the Controller only advances to the
// next wave once the current one's health wait completes. CRDs get the Analyzer's
// change-safety check (against whatever is currently live) and an
// Established wait before any manifest in a later wave may depend on them.
func (c *Controller) applyWaves(ctx context.Context, ms []*manifest.Manifest, timeout, waveTimeout time.Duration, force bool) ([]*manifest.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ordered := classify.ApplyOrder(ms)
	var applied []*manifest.Manifest

	for _, wave := range classify.Waves(ordered) {
		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		for _, m := range wave.Manifests {
			m := m
			g.Go(func() error {
				if m.IsCRD() {
					if err := c.applyCRD(gctx, m, force); err != nil {
						return err
					}
				} else {
					outcome, _, err := c.apply.Apply(gctx, m, apply.ApplyOptions{Force: force})
					if err != nil {
						return fmt.Errorf("apply %s: %w", m.ID(), err)
					}
					if outcome == apply.OutcomeConflict {
						return shiperr.New(shiperr.KindApplyConflict, fmt.Sprintf("apply %s: owned by another field manager", m.ID()))
					}
				}
				mu.Lock()
				applied = append(applied, m)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return applied, err
		}

		result, err := c.evalr.WaitReady(ctx, wave.Manifests, waveTimeout, defaultPollInterval)
		if err != nil {
			return applied, fmt.Errorf("wait for wave (syncWave=%d, bucket=%d): %w", wave.SyncWave, wave.OrderBucket, err)
		}
		switch result.Status {
		case health.StatusHealthy:
		case health.StatusTimeout:
			return applied, shiperr.New(shiperr.KindHealthTimeout, fmt.Sprintf("wave (syncWave=%d, bucket=%d) did not become ready in time", wave.SyncWave, wave.OrderBucket))
		case health.StatusDegraded:
			return applied, shiperr.New(shiperr.KindHealthDegraded, fmt.Sprintf("wave (syncWave=%d, bucket=%d) degraded: %v", wave.SyncWave, wave.OrderBucket, result.Degraded))
		default:
			return applied, shiperr.New(shiperr.KindApplyFailed, fmt.Sprintf("wave (syncWave=%d, bucket=%d): %s", wave.SyncWave, wave.OrderBucket, result.Reason))
		}
	}
	return applied, nil
}

// applyCRD runs the CRD Analyzer's change-safety check before applying a
// CustomResourceDefinition, then waits for it to become Established so any
// custom resource in a later wave can be safely created.
func (c *Controller) applyCRD(ctx context.Context, m *manifest.Manifest, force bool) error {
	policy := m.CRDPolicy()
	if !crd.AllowInstallOrUpdate(policy) {
		c.log.Debug("skipping CRD install/update, policy forbids it", "crd", m.ID(), "policy", policy)
		return nil
	}

	id := apply.IDOf(m)
	live, err := c.apply.LiveGet(ctx, id)
	if err == nil {
		changes, cmpErr := crd.Compare(live, m.Unstructured())
		if cmpErr != nil {
			return fmt.Errorf("compare CRD %s: %w", m.ID(), cmpErr)
		}
		switch crd.Decide(changes, force) {
		case crd.DecisionRefused:
			return shiperr.New(shiperr.KindCRDUnsafeChange, fmt.Sprintf("CRD %s: dangerous schema change refused without force", m.ID()))
		case crd.DecisionWarn:
			c.log.Warn("CRD change applied with warning", "crd", m.ID())
		}
	} else if !errors.Is(err, apply.ErrNotFound) {
		return fmt.Errorf("check existing CRD %s: %w", m.ID(), err)
	}

	outcome, _, err := c.apply.Apply(ctx, m, apply.ApplyOptions{Force: force})
	if err != nil {
		return fmt.Errorf("apply CRD %s: %w", m.ID(), err)
	}
	if outcome == apply.OutcomeConflict {
		return shiperr.New(shiperr.KindApplyConflict, fmt.Sprintf("apply CRD %s: owned by another field manager", m.ID()))
	}
	return crd.WaitEstablished(ctx, c.apply, id, defaultPollInterval)
}

// cleanupApplied deletes every manifest this operation applied, in reverse
// order, honoring resource-policy=keep — the Atomic failure path.
func (c *Controller) cleanupApplied(ctx context.Context, applied []*manifest.Manifest) {
	for _, m := range classify.DeleteOrder(applied) {
		if _, err := c.apply.Delete(ctx, apply.IDOf(m), m.IsKept()); err != nil {
			c.log.Warn("atomic cleanup: failed to delete resource", "resource", m.ID(), "error", err)
		}
	}
}

// liveState fetches the current cluster state of every manifest in ms,
// skipping (not failing on) resources that no longer exist — the three-way
// diff only needs live state for drift detection on otherwise-unchanged
// resources.
func (c *Controller) liveState(ctx context.Context, ms []*manifest.Manifest) map[manifest.ID]*unstructured.Unstructured {
	out := make(map[manifest.ID]*unstructured.Unstructured, len(ms))
	for _, m := range ms {
		obj, err := c.apply.LiveGet(ctx, apply.IDOf(m))
		if err != nil {
			continue
		}
		out[m.ID()] = obj
	}
	return out
}

// normalManifests filters out hook manifests, which the Controller applies
// only through the Hook Executor, never through the normal wave loop.
func normalManifests(ms []*manifest.Manifest) []*manifest.Manifest {
	out := make([]*manifest.Manifest, 0, len(ms))
	for _, m := range ms {
		if m.Role != manifest.RoleHook {
			out = append(out, m)
		}
	}
	return out
}

func indexNormalManifests(ms []*manifest.Manifest) map[manifest.ID]*manifest.Manifest {
	out := make(map[manifest.ID]*manifest.Manifest)
	for _, m := range normalManifests(ms) {
		out[m.ID()] = m
	}
	return out
}

// crdInstanceGVK reads the group/served-version/kind a CustomResourceDefinition
// manifest describes, so the Controller can count live instances of it
// before allowing deletion.
func crdInstanceGVK(m *manifest.Manifest) (schema.GroupVersionKind, bool) {
	obj := m.Unstructured().Object
	group, _, _ := unstructured.NestedString(obj, "spec", "group")
	kind, _, _ := unstructured.NestedString(obj, "spec", "names", "kind")
	versions, _, _ := unstructured.NestedSlice(obj, "spec", "versions")
	if group == "" || kind == "" {
		return schema.GroupVersionKind{}, false
	}
	for _, v := range versions {
		vm, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if served, _ := vm["served"].(bool); !served {
			continue
		}
		name, _ := vm["name"].(string)
		if name == "" {
			continue
		}
		return schema.GroupVersionKind{Group: group, Version: name, Kind: kind}, true
	}
	return schema.GroupVersionKind{}, false
}
