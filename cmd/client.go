package cmd

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"

	"github.com/hashmap-kz/shipctl/internal/apply"
	"github.com/hashmap-kz/shipctl/internal/health"
	"github.com/hashmap-kz/shipctl/internal/hook"
	"github.com/hashmap-kz/shipctl/internal/logging"
	"github.com/hashmap-kz/shipctl/internal/release"
	"github.com/hashmap-kz/shipctl/internal/store"
)

// buildController wires a rest.Config into every downstream dependency the
// Release Controller needs: the same dynamic + discovery + RESTMapper client
// bring-up used everywhere else in this engine, sourcing the kubeconfig from
// genericclioptions.ConfigFlags instead of a single in-cluster-or-home
// fallback.
func (g *globalOptions) buildController() (*release.Controller, error) {
	cfg, err := g.configFlags.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("build kube config: %w", err)
	}

	log := logging.New(logging.Config{Level: g.logLevel, Format: g.logFormat, Output: g.streams.ErrOut})

	applyClient, err := apply.NewForConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build apply client: %w", err)
	}

	mapper, err := restMapperFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("build rest mapper: %w", err)
	}
	evaluator, err := health.NewEvaluator(cfg, mapper, log)
	if err != nil {
		return nil, fmt.Errorf("build health evaluator: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}
	hooks := hook.NewExecutor(applyClient, evaluator, clientset, log)

	releaseStore, err := g.buildStore(clientset)
	if err != nil {
		return nil, err
	}

	return release.NewController(applyClient, evaluator, hooks, releaseStore, log), nil
}

// buildStoreOnly constructs just the release store, for read-only commands
// (history/list) that have no need to stand up the apply/health/hook
// stack.
func (g *globalOptions) buildStoreOnly() (release.Store, error) {
	if g.storeDriver == "file" {
		return g.buildStore(nil)
	}
	cfg, err := g.configFlags.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("build kube config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}
	return g.buildStore(clientset)
}

// buildStore selects the release-store backend named by --store.
func (g *globalOptions) buildStore(clientset kubernetes.Interface) (release.Store, error) {
	codec := store.GzipCodec{}
	switch g.storeDriver {
	case "secret", "":
		return store.NewSecretStore(clientset, codec), nil
	case "configmap":
		return store.NewConfigMapStore(clientset, codec), nil
	case "file":
		if g.storePath == "" {
			return nil, fmt.Errorf("--store-path is required with --store=file")
		}
		return store.NewFileStore(g.storePath, codec), nil
	default:
		return nil, fmt.Errorf("unknown --store %q, want secret|configmap|file", g.storeDriver)
	}
}

// restMapperFor builds a discovery-backed RESTMapper: a discovery client
// wrapped in a memory-cached, deferred mapper.
func restMapperFor(cfg *rest.Config) (meta.RESTMapper, error) {
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build discovery client: %w", err)
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc)), nil
}
