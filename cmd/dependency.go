package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hashmap-kz/shipctl/internal/dependency"
	"github.com/hashmap-kz/shipctl/internal/printer"
	"github.com/hashmap-kz/shipctl/internal/repo"
)

// declaredFile is the on-disk shape a pack declares its dependency list in:
// a plain YAML list, read straight off the filesystem rather than through
// the internal/manifest multi-document decoder, since a dependency
// declaration is not a Kubernetes-shaped object.
type declaredFile struct {
	Dependencies []dependency.Declared `yaml:"dependencies"`
}

func loadDeclared(path string) ([]dependency.Declared, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dependency file: %w", err)
	}
	var doc declaredFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dependency file: %w", err)
	}
	return doc.Dependencies, nil
}

func newDependencyCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dependency",
		Short: "Resolve and inspect a pack's declared dependency graph.",
	}
	cmd.AddCommand(newDependencyResolveCmd(g))
	return cmd
}

func newDependencyResolveCmd(g *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the dependency graph declared in --filename against its repositories.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("--filename is required")
			}
			declared, err := loadDeclared(file)
			if err != nil {
				return err
			}
			dispatcher := repo.NewDispatcher()
			graph, err := dependency.Resolve(cmd.Context(), declared, dispatcher, nil)
			if err != nil {
				return err
			}
			printer.RenderDependencyGraph(g.streams.Out, graph)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "Path to the pack's dependency declaration file.")
	return cmd
}
