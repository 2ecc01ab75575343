package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/release"
)

func newRollbackCmd(g *globalOptions) *cobra.Command {
	var namespace string
	var targetRevision int
	var timeout, waveTimeout time.Duration
	var force, disableHooks bool

	cmd := &cobra.Command{
		Use:   "rollback NAME",
		Short: "Roll back a release to a previous revision.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := g.buildController()
			if err != nil {
				return err
			}
			r, err := ctrl.Rollback(cmd.Context(), args[0], resolveNamespace(g, namespace), release.RollbackOptions{
				TargetRevision: targetRevision, Force: force, DisableHooks: disableHooks,
				Timeout: timeout, WaveTimeout: waveTimeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "release %q rolled back to revision %d, state %s\n", r.Name, r.Revision, r.State)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	f.IntVar(&targetRevision, "revision", 0, "Revision to roll back to (0 means the immediately preceding revision).")
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall rollback timeout.")
	f.DurationVar(&waveTimeout, "wave-timeout", 0, "Per-wave health wait timeout (defaults to --timeout).")
	f.BoolVar(&force, "force", false, "Force server-side apply conflicts.")
	f.BoolVar(&disableHooks, "no-hooks", false, "Skip pre/post-rollback hooks.")
	return cmd
}
