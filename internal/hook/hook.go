// Package hook implements executing hook manifests for a given lifecycle
// phase: sorting by weight, applying each, waiting for readiness, and
// deleting according to its hook-delete-policy afterward.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/hashmap-kz/shipctl/internal/apply"
	"github.com/hashmap-kz/shipctl/internal/health"
	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/shiperr"
)

// FailurePolicy controls what ExecutePhase does when a hook fails.
type FailurePolicy string

const (
	FailurePolicyFail     FailurePolicy = "Fail"
	FailurePolicyContinue FailurePolicy = "Continue"
	FailurePolicyRollback FailurePolicy = "Rollback"
)

// HookResult reports what happened to a single hook manifest.
type HookResult struct {
	ID        manifest.ID
	Phase     manifest.HookPhase
	Weight    int
	Succeeded bool
	Logs      string
	Err       error
}

// Executor runs hook phases against a cluster, reusing the Apply Engine for
// create/delete and the Health Evaluator for the readiness wait.
type Executor struct {
	apply     *apply.Client
	health    *health.Evaluator
	clientset kubernetes.Interface
	log       *slog.Logger
}

// NewExecutor builds an Executor. clientset may be nil, in which case hook
// failure log capture is skipped (degrades gracefully rather than failing
// the whole phase over missing credentials for logs alone).
func NewExecutor(applyClient *apply.Client, healthEval *health.Evaluator, clientset kubernetes.Interface, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{apply: applyClient, health: healthEval, clientset: clientset, log: log}
}

// ExecutePhase runs every manifest in allManifests whose hook annotation
// contains phase, grouped and ordered by hook-weight ascending, hooks within
// a weight group created in deterministic (namespace,name) order but their
// readiness awaited concurrently.
func (e *Executor) ExecutePhase(ctx context.Context, phase manifest.HookPhase, allManifests []*manifest.Manifest, timeout time.Duration, failurePolicy FailurePolicy) ([]HookResult, error) {
	var hooks []*manifest.Manifest
	for _, m := range allManifests {
		if m.HasHookPhase(phase) {
			hooks = append(hooks, m)
		}
	}
	if len(hooks) == 0 {
		return nil, nil
	}

	var results []HookResult
	for _, group := range groupByWeight(hooks) {
		groupResults, err := e.runWeightGroup(ctx, phase, group, timeout)
		results = append(results, groupResults...)
		if err != nil {
			if failurePolicy == FailurePolicyContinue {
				e.log.Warn("hook phase continuing past failure", "phase", phase, "error", err)
				continue
			}
			return results, err
		}
	}
	return results, nil
}

// runWeightGroup applies before-hook-creation cleanup, creates every hook in
// the group in deterministic order, then awaits all of them concurrently.
func (e *Executor) runWeightGroup(ctx context.Context, phase manifest.HookPhase, group []*manifest.Manifest, timeout time.Duration) ([]HookResult, error) {
	for _, h := range group {
		if err := e.deleteByPolicy(ctx, h, manifest.HookDeleteBeforeCreation); err != nil {
			return nil, err
		}
	}

	for _, h := range group {
		if _, _, err := e.apply.Apply(ctx, h, apply.ApplyOptions{Force: true}); err != nil {
			return nil, shiperr.Wrap(shiperr.KindHookFailed, fmt.Sprintf("create hook %s", h.ID()), err)
		}
	}

	results := make([]HookResult, len(group))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range group {
		i, h := i, h
		g.Go(func() error {
			res := e.awaitAndCleanup(gctx, phase, h, timeout)
			results[i] = res
			if !res.Succeeded {
				return res.Err
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// awaitAndCleanup waits for a single hook's readiness, applies the matching
// succeeded/failed delete policy, and on failure captures pod logs.
func (e *Executor) awaitAndCleanup(ctx context.Context, phase manifest.HookPhase, h *manifest.Manifest, timeout time.Duration) HookResult {
	res := HookResult{ID: h.ID(), Phase: phase, Weight: h.HookWeight()}

	waitResult, err := e.health.WaitReady(ctx, []*manifest.Manifest{h}, timeout, 2*time.Second)
	failed := err != nil || waitResult.Status != health.StatusHealthy

	if failed {
		res.Err = err
		if res.Err == nil {
			res.Err = fmt.Errorf("hook %s did not become ready: %s", h.ID(), waitResult.Status)
		}
		res.Logs, _ = e.collectLogs(ctx, h)
		if delErr := e.deleteByPolicy(ctx, h, manifest.HookDeleteFailed); delErr != nil {
			e.log.Warn("cleanup after hook failure also failed", "hook", h.ID(), "error", delErr)
		}
		return res
	}

	res.Succeeded = true
	if delErr := e.deleteByPolicy(ctx, h, manifest.HookDeleteSucceeded); delErr != nil {
		res.Err = delErr
	}
	return res
}

// deleteByPolicy is Helm's deleteHookByPolicy: CRDs are never deleted via a
// hook cleanup policy (it would cascade-GC every instance), and only the
// policies actually attached to the hook fire.
func (e *Executor) deleteByPolicy(ctx context.Context, h *manifest.Manifest, policy manifest.HookDeletePolicy) error {
	if h.IsCRD() {
		return nil
	}
	if !h.HasDeletePolicy(policy) {
		return nil
	}
	outcome, err := e.apply.Delete(ctx, apply.IDOf(h), false)
	if err != nil {
		return shiperr.Wrap(shiperr.KindHookFailed, fmt.Sprintf("delete hook %s (%s)", h.ID(), policy), err)
	}
	if outcome == apply.DeleteOutcomeDeleted && policy == manifest.HookDeleteBeforeCreation {
		return e.waitDisappeared(ctx, apply.IDOf(h))
	}
	return nil
}

// waitDisappeared polls until id's LiveGet returns apply.ErrNotFound, so the
// next create in this weight group does not race the deletion.
func (e *Executor) waitDisappeared(ctx context.Context, id apply.ResourceID) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, err := e.apply.LiveGet(ctx, id)
		if errors.Is(err, apply.ErrNotFound) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// collectLogs is Helm's hookGetLogs/hookGetPodLogs, fetching container logs
// for a failed Job's pods or a failed Pod hook directly.
func (e *Executor) collectLogs(ctx context.Context, h *manifest.Manifest) (string, error) {
	if e.clientset == nil {
		return "", nil
	}
	switch h.Kind() {
	case "Job":
		pods, err := e.clientset.CoreV1().Pods(h.Namespace()).List(ctx, metav1.ListOptions{
			LabelSelector: fmt.Sprintf("job-name=%s", h.Name()),
		})
		if err != nil {
			return "", err
		}
		var logs []string
		for i := range pods.Items {
			l, err := e.podLogs(ctx, &pods.Items[i])
			if err != nil {
				return "", err
			}
			logs = append(logs, l)
		}
		return strings.Join(logs, "\n"), nil
	case "Pod":
		pod, err := e.clientset.CoreV1().Pods(h.Namespace()).Get(ctx, h.Name(), metav1.GetOptions{})
		if err != nil {
			return "", err
		}
		return e.podLogs(ctx, pod)
	default:
		return "", nil
	}
}

func (e *Executor) podLogs(ctx context.Context, pod *corev1.Pod) (string, error) {
	var logs []string
	for _, c := range pod.Spec.Containers {
		req := e.clientset.CoreV1().Pods(pod.Namespace).GetLogs(pod.Name, &corev1.PodLogOptions{Container: c.Name})
		stream, err := req.Stream(ctx)
		if err != nil {
			return "", fmt.Errorf("stream logs for %s/%s: %w", pod.Name, c.Name, err)
		}
		buf := make([]byte, 0, 4096)
		chunk := make([]byte, 4096)
		for {
			n, rerr := stream.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if rerr != nil {
				break
			}
		}
		stream.Close()
		logs = append(logs, fmt.Sprintf("pod %s, container %s:\n%s", pod.Name, c.Name, string(buf)))
	}
	return strings.Join(logs, "\n"), nil
}

// groupByWeight buckets hooks by hook-weight, ascending, each bucket
// internally ordered by (namespace,name) for deterministic creation order —
// Helm's hookByWeight sort, generalized to also split into discrete groups
// since this engine awaits a whole group concurrently.
func groupByWeight(hooks []*manifest.Manifest) [][]*manifest.Manifest {
	sorted := make([]*manifest.Manifest, len(hooks))
	copy(sorted, hooks)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := sorted[i].HookWeight(), sorted[j].HookWeight()
		if wi != wj {
			return wi < wj
		}
		if sorted[i].Namespace() != sorted[j].Namespace() {
			return sorted[i].Namespace() < sorted[j].Namespace()
		}
		return sorted[i].Name() < sorted[j].Name()
	})

	var groups [][]*manifest.Manifest
	for _, h := range sorted {
		if len(groups) > 0 && groups[len(groups)-1][0].HookWeight() == h.HookWeight() {
			groups[len(groups)-1] = append(groups[len(groups)-1], h)
			continue
		}
		groups = append(groups, []*manifest.Manifest{h})
	}
	return groups
}
