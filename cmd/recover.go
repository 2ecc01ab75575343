package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCmd(g *globalOptions) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "recover NAME",
		Short: "Force a stuck Pending-*/Uninstalling revision to Failed once it has been stale past the recovery threshold.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := g.buildController()
			if err != nil {
				return err
			}
			r, err := ctrl.Recover(cmd.Context(), args[0], resolveNamespace(g, namespace))
			if err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "release %q revision %d is now %s\n", r.Name, r.Revision, r.State)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	return cmd
}
