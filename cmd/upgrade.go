package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/release"
)

func newUpgradeCmd(g *globalOptions) *cobra.Command {
	var filenames []string
	var recursive bool
	var namespace string
	var timeout, waveTimeout time.Duration
	var atomic, force, disableHooks bool

	cmd := &cobra.Command{
		Use:   "upgrade NAME -f FILE [-f FILE...]",
		Short: "Upgrade an existing release to a new revision.",
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
			r, err := ctrl.Upgrade(cmd.Context(), args[0], resolveNamespace(g, namespace), manifests, release.UpgradeOptions{
				Atomic: atomic, Force: force, DisableHooks: disableHooks,
				Timeout: timeout, WaveTimeout: waveTimeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "release %q upgraded to revision %d, state %s\n", r.Name, r.Revision, r.State)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&filenames, "filename", "f", nil, "Manifest files, glob patterns, or directories to upgrade to.")
	f.BoolVarP(&recursive, "recursive", "R", false, "Recurse into directories specified with --filename.")
	f.StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall upgrade timeout.")
	f.DurationVar(&waveTimeout, "wave-timeout", 0, "Per-wave health wait timeout (defaults to --timeout).")
	f.BoolVar(&atomic, "atomic", false, "Automatically roll back to the previous revision if upgrade fails.")
	f.BoolVar(&force, "force", false, "Force server-side apply conflicts.")
	f.BoolVar(&disableHooks, "no-hooks", false, "Skip pre/post-upgrade hooks.")
	return cmd
}
