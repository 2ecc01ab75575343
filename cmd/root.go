package cmd

import (
	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/genericiooptions"
)

// globalOptions holds the flags every subcommand shares: cluster connection
// (configFlags, the standard genericclioptions.ConfigFlags idiom) and a
// pluggable release-store backend selection.
type globalOptions struct {
	configFlags *genericclioptions.ConfigFlags
	streams     genericiooptions.IOStreams
	logLevel    string
	logFormat   string
	storeDriver string
	storePath   string
}

// NewRootCmd builds the shipctl root command: one subcommand tree per
// release, dependency, lock, and repository operation.
func NewRootCmd(streams genericiooptions.IOStreams) *cobra.Command {
	cfgFlags := genericclioptions.NewConfigFlags(true)
	g := &globalOptions{configFlags: cfgFlags, streams: streams}

	rootCmd := &cobra.Command{
		Use:           "shipctl",
		Short:         "Package manager for Kubernetes clusters: install, upgrade, and track releases with rollback on failure.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level: debug|info|warn|error.")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format: text|json.")
	pf.StringVar(&g.storeDriver, "store", "secret", "Release store backend: secret|configmap|file.")
	pf.StringVar(&g.storePath, "store-path", "", "Root directory for --store=file.")
	cfgFlags.AddFlags(pf)

	rootCmd.AddCommand(
		newInstallCmd(g),
		newUpgradeCmd(g),
		newRollbackCmd(g),
		newUninstallCmd(g),
		newStatusCmd(g),
		newHistoryCmd(g),
		newListCmd(g),
		newRecoverCmd(g),
		newDependencyCmd(g),
		newLockCmd(g),
		newRepoCmd(g),
	)
	return rootCmd
}
