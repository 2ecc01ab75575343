package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/printer"
	"github.com/hashmap-kz/shipctl/internal/repo"
)

func newRepoCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Query a repository backend directly (HTTP index, OCI registry, or local directory).",
	}
	cmd.AddCommand(newRepoSearchCmd(g), newRepoDownloadCmd(g))
	return cmd
}

func newRepoSearchCmd(g *globalOptions) *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "List entries in --repository matching QUERY.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if repository == "" {
				return fmt.Errorf("--repository is required")
			}
			var query string
			if len(args) == 1 {
				query = args[0]
			}
			dispatcher := repo.NewDispatcher()
			entries, err := dispatcher.Search(cmd.Context(), repository, query)
			if err != nil {
				return err
			}
			printer.RenderRepoEntries(g.streams.Out, entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&repository, "repository", "", "Repository reference: a local path, http(s):// index URL, or oci:// reference.")
	return cmd
}

func newRepoDownloadCmd(g *globalOptions) *cobra.Command {
	var repository, version, out string

	cmd := &cobra.Command{
		Use:   "download NAME",
		Short: "Download the best match of NAME from --repository.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if repository == "" {
				return fmt.Errorf("--repository is required")
			}
			dispatcher := repo.NewDispatcher()
			resolved, archive, err := dispatcher.Get(cmd.Context(), repository, args[0], version)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("%s-%s.tgz", args[0], resolved)
			}
			if err := os.WriteFile(out, archive, 0o644); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			fmt.Fprintf(g.streams.Out, "downloaded %s@%s to %s\n", args[0], resolved, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&repository, "repository", "", "Repository reference: a local path, http(s):// index URL, or oci:// reference.")
	cmd.Flags().StringVar(&version, "version", "", "Version constraint (defaults to the highest available).")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Archive file path to write (defaults to NAME-VERSION.tgz).")
	return cmd
}
