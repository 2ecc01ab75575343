package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/release"
)

func newInstallCmd(g *globalOptions) *cobra.Command {
	var filenames []string
	var recursive bool
	var namespace string
	var timeout, waveTimeout time.Duration
	var atomic, force, disableHooks bool
	var packRef string

	cmd := &cobra.Command{
		Use:   "install NAME -f FILE [-f FILE...]",
		Short: "Install a new release.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(filenames) == 0 {
				return fmt.Errorf("at least one --filename/-f must be specified")
			}
			manifests, err := loadManifests(filenames, recursive)
			if err != nil {
				return err
			}
			ctrl, err := g.buildController()
			if err != nil {
				return err
			}
			ns := resolveNamespace(g, namespace)
			r, err := ctrl.Install(cmd.Context(), args[0], ns, manifests, release.InstallOptions{
				Atomic: atomic, Force: force, DisableHooks: disableHooks,
				Timeout: timeout, WaveTimeout: waveTimeout, PackRef: packRef,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "release %q installed at revision %d, state %s\n", r.Name, r.Revision, r.State)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&filenames, "filename", "f", nil, "Manifest files, glob patterns, or directories to install.")
	f.BoolVarP(&recursive, "recursive", "R", false, "Recurse into directories specified with --filename.")
	f.StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall install timeout.")
	f.DurationVar(&waveTimeout, "wave-timeout", 0, "Per-wave health wait timeout (defaults to --timeout).")
	f.BoolVar(&atomic, "atomic", false, "Clean up applied resources if install fails.")
	f.BoolVar(&force, "force", false, "Force server-side apply conflicts.")
	f.BoolVar(&disableHooks, "no-hooks", false, "Skip pre/post-install hooks.")
	f.StringVar(&packRef, "pack-ref", "", "Pack reference this release was installed from, recorded for history.")
	return cmd
}

// resolveNamespace falls back to the config-flags namespace (the current
// kube context's namespace) when --namespace is empty.
func resolveNamespace(g *globalOptions, namespace string) string {
	if namespace != "" {
		return namespace
	}
	if g.configFlags.Namespace != nil && *g.configFlags.Namespace != "" {
		return *g.configFlags.Namespace
	}
	return "default"
}
