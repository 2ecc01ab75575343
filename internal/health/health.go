// Package health implements polling cluster state of a batch of
// just-applied resources and reporting an aggregate readiness verdict.
//
// The default path is a cli-utils status poller driven by a
// ResourceStatusCollector whose ObserverFunc cancels once the aggregate
// status matches the desired one. Per-resource annotation overrides
// (Skip/CustomHttp/CustomCmd) are layered on top before resources ever reach
// the poller.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling/aggregator"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling/collector"
	pollevent "sigs.k8s.io/cli-utils/pkg/kstatus/polling/event"
	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"
	"sigs.k8s.io/cli-utils/pkg/object"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/hashmap-kz/shipctl/internal/manifest"
	"log/slog"
)

// Status is the aggregate verdict of a WaitReady call.
type Status string

const (
	StatusHealthy   Status = "Healthy"
	StatusDegraded  Status = "Degraded"
	StatusFailed    Status = "Failed"
	StatusTimeout   Status = "Timeout"
)

// Result is the outcome of WaitReady.
type Result struct {
	Status   Status
	Degraded []manifest.ID
	Reason   string
}

// CommandInvoker runs an external command and reports its exit status. It is
// an interface (rather than a direct os/exec call) purely so CustomCmd
// checks are fakeable in tests; production code uses execInvoker.
type CommandInvoker interface {
	Run(ctx context.Context, argv []string) error
}

type execInvoker struct{}

func (execInvoker) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	return cmd.Run()
}

// Evaluator polls resource health, dispatching each manifest to the kstatus
// poller, an HTTP check, or a command check per its HealthCheck annotation.
type Evaluator struct {
	reader     ctrlclient.Reader
	mapper     meta.RESTMapper
	httpClient *http.Client
	invoker    CommandInvoker
	log        *slog.Logger
}

// NewFromReader builds an Evaluator directly from a controller-runtime
// reader and REST mapper, bypassing config-based client construction.
// NewEvaluator is the production path; tests use this to inject a fake
// client.
func NewFromReader(reader ctrlclient.Reader, mapper meta.RESTMapper, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		reader:     reader,
		mapper:     mapper,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		invoker:    execInvoker{},
		log:        log,
	}
}

// NewEvaluator builds an Evaluator from a REST config and a RESTMapper used
// to resolve the kinds of the objects it reads.
func NewEvaluator(cfg *rest.Config, mapper meta.RESTMapper, log *slog.Logger) (*Evaluator, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("build scheme: %w", err)
	}
	crClient, err := ctrlclient.New(cfg, ctrlclient.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("build controller-runtime client: %w", err)
	}
	return NewFromReader(crClient, mapper, log), nil
}

// WaitReady blocks until every manifest in ms reaches readiness (per its
// individual policy), timeout elapses, or ctx is cancelled.
func (e *Evaluator) WaitReady(ctx context.Context, ms []*manifest.Manifest, timeout, pollInterval time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var polled, httpChecked, cmdChecked []*manifest.Manifest
	for _, m := range ms {
		switch m.HealthCheck().Kind {
		case manifest.HealthCheckNone:
			continue
		case manifest.HealthCheckHTTP:
			httpChecked = append(httpChecked, m)
		case manifest.HealthCheckCommand:
			cmdChecked = append(cmdChecked, m)
		default:
			polled = append(polled, m)
		}
	}

	var mu sync.Mutex
	var degraded []manifest.ID

	g, gctx := errgroup.WithContext(ctx)

	if len(polled) > 0 {
		g.Go(func() error {
			ok, err := e.waitKstatus(gctx, polled, pollInterval)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				for _, m := range polled {
					degraded = append(degraded, m.ID())
				}
				mu.Unlock()
			}
			return nil
		})
	}
	for _, m := range httpChecked {
		m := m
		g.Go(func() error {
			ok, err := e.waitHTTP(gctx, m, pollInterval)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				degraded = append(degraded, m.ID())
				mu.Unlock()
			}
			return nil
		})
	}
	for _, m := range cmdChecked {
		m := m
		g.Go(func() error {
			ok, err := e.waitCmd(gctx, m, pollInterval)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				degraded = append(degraded, m.ID())
				mu.Unlock()
			}
			return nil
		})
	}

	waitErr := g.Wait()

	if waitErr != nil {
		if ctx.Err() != nil {
			return Result{Status: StatusTimeout, Degraded: degraded}, nil
		}
		return Result{Status: StatusFailed, Reason: waitErr.Error()}, nil
	}
	if ctx.Err() != nil {
		return Result{Status: StatusTimeout, Degraded: degraded}, nil
	}
	if len(degraded) > 0 {
		return Result{Status: StatusDegraded, Degraded: degraded}, nil
	}
	return Result{Status: StatusHealthy}, nil
}

// waitKstatus polls cli-utils status for an arbitrary manifest subset,
// returning a bool rather than exiting the process on failure.
func (e *Evaluator) waitKstatus(ctx context.Context, ms []*manifest.Manifest, pollInterval time.Duration) (bool, error) {
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resources := make([]object.ObjMetadata, 0, len(ms))
	for _, m := range ms {
		id, err := object.RuntimeToObjMeta(m.Unstructured())
		if err != nil {
			return false, fmt.Errorf("build object metadata for %s: %w", m.ID(), err)
		}
		resources = append(resources, id)
	}
	if len(resources) == 0 {
		return true, nil
	}

	poller := polling.NewStatusPoller(e.reader, e.mapper, polling.Options{})
	eventCh := poller.Poll(cancelCtx, resources, polling.PollOptions{PollInterval: pollInterval})

	statusCollector := collector.NewResourceStatusCollector(resources)
	done := statusCollector.ListenWithObserver(eventCh, e.observer(cancel, kstatus.CurrentStatus))
	<-done

	if statusCollector.Error != nil {
		return false, statusCollector.Error
	}
	if ctx.Err() != nil {
		return false, nil
	}
	return true, nil
}

// observer cancels the poller once every tracked resource reaches desired
// status, logging the first non-ready resource on each tick.
func (e *Evaluator) observer(cancel context.CancelFunc, desired kstatus.Status) collector.ObserverFunc {
	return func(c *collector.ResourceStatusCollector, _ pollevent.Event) {
		var rss []*pollevent.ResourceStatus
		var nonReady []*pollevent.ResourceStatus

		for _, rs := range c.ResourceStatuses {
			if rs == nil {
				continue
			}
			if rs.Status == kstatus.UnknownStatus && desired == kstatus.NotFoundStatus {
				continue
			}
			rss = append(rss, rs)
			if rs.Status != desired {
				nonReady = append(nonReady, rs)
			}
		}

		if aggregator.AggregateStatus(rss, desired) == desired {
			cancel()
			return
		}

		if len(nonReady) > 0 {
			sort.Slice(nonReady, func(i, j int) bool {
				return nonReady[i].Identifier.Name < nonReady[j].Identifier.Name
			})
			first := nonReady[0]
			e.log.Debug("waiting for resource",
				"kind", first.Identifier.GroupKind.Kind,
				"name", first.Identifier.Name,
				"status", first.Status)
		}
	}
}

// waitHTTP polls m's health-check-url annotation until it returns a 2xx or
// ctx is cancelled.
func (e *Evaluator) waitHTTP(ctx context.Context, m *manifest.Manifest, pollInterval time.Duration) (bool, error) {
	url := m.HealthCheck().URL
	if url == "" {
		return false, fmt.Errorf("%s: health-check=http requires health-check-url", m.ID())
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := e.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					return true, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// waitCmd polls m's health-check-command annotation via the CommandInvoker
// until it exits zero or ctx is cancelled.
func (e *Evaluator) waitCmd(ctx context.Context, m *manifest.Manifest, pollInterval time.Duration) (bool, error) {
	argv := m.HealthCheck().Command
	if len(argv) == 0 {
		return false, fmt.Errorf("%s: health-check=command requires health-check-command", m.ID())
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if e.invoker.Run(ctx, argv) == nil {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}
