package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/dependency"
	"github.com/hashmap-kz/shipctl/internal/lock"
	"github.com/hashmap-kz/shipctl/internal/repo"
	"github.com/hashmap-kz/shipctl/internal/resolve"
)

func newLockCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Build and verify a pack's dependency lock file.",
	}
	cmd.AddCommand(newLockBuildCmd(g), newLockVerifyCmd(g))
	return cmd
}

func newLockBuildCmd(g *globalOptions) *cobra.Command {
	var file, out, policy string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve --filename's dependency graph and write a lock file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("--filename is required")
			}
			sourceData, err := resolve.ReadFileContent(file)
			if err != nil {
				return err
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

			digestOf := func(n *dependency.Node) (string, error) {
				_, archive, err := dispatcher.Get(cmd.Context(), n.Repository, n.PackName, n.Constraint)
				if err != nil {
					return "", err
				}
				return lock.Digest(archive), nil
			}
			l, err := lock.Build(graph, lock.Digest(sourceData), lock.Policy(policy), digestOf)
			if err != nil {
				return err
			}
			encoded, err := lock.Encode(l)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = g.streams.Out.Write(encoded)
				return err
			}
			return os.WriteFile(out, encoded, 0o644)
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "Path to the pack's dependency declaration file.")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Lock file path to write (defaults to stdout).")
	cmd.Flags().StringVar(&policy, "policy", string(lock.PolicyStrict), "Drift policy: Strict|Version|SemverPatch|SemverMinor.")
	return cmd
}

func newLockVerifyCmd(g *globalOptions) *cobra.Command {
	var file, lockFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify --lock-file's source digest still matches --filename.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" || lockFile == "" {
				return fmt.Errorf("--filename and --lock-file are required")
			}
			sourceData, err := resolve.ReadFileContent(file)
			if err != nil {
				return err
			}
			lockData, err := resolve.ReadFileContent(lockFile)
			if err != nil {
				return err
			}
			l, err := lock.Decode(lockData)
			if err != nil {
				return err
			}
			if err := lock.VerifySource(l, lock.Digest(sourceData)); err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "lock file is up to date with %s\n", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "Path to the pack's dependency declaration file.")
	cmd.Flags().StringVar(&lockFile, "lock-file", "", "Path to the lock file to verify.")
	return cmd
}
