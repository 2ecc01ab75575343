package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(g *globalOptions) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "status NAME",
		Short: "Show the latest revision of a release.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := g.buildController()
			if err != nil {
				return err
			}
			r, err := ctrl.Status(cmd.Context(), args[0], resolveNamespace(g, namespace))
			if err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "%s/%s  revision %d  %s  updated %s\n",
				r.Namespace, r.Name, r.Revision, r.State, r.UpdatedAt.Format("2006-01-02 15:04:05"))
			if r.Description != "" {
				fmt.Fprintf(g.streams.Out, "%s\n", r.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	return cmd
}
