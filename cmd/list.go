package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/printer"
)

func newListCmd(g *globalOptions) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every release's latest revision in a namespace.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.buildStoreOnly()
			if err != nil {
				return err
			}
			releases, err := s.List(cmd.Context(), resolveNamespace(g, namespace))
			if err != nil {
				return err
			}
			printer.RenderReleaseList(g.streams.Out, releases)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to list (defaults to the current context's namespace).")
	return cmd
}
