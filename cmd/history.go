package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/printer"
)

func newHistoryCmd(g *globalOptions) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "history NAME",
		Short: "Show a release's revision history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.buildStoreOnly()
			if err != nil {
				return err
			}
			hist, err := s.History(cmd.Context(), args[0], resolveNamespace(g, namespace))
			if err != nil {
				return err
			}
			printer.RenderReleaseHistory(g.streams.Out, hist)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	return cmd
}
