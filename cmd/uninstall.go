package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashmap-kz/shipctl/internal/release"
)

func newUninstallCmd(g *globalOptions) *cobra.Command {
	var namespace string
	var timeout time.Duration
	var keepHistory, deleteCRDs, disableHooks bool
	var crdConfirmToken string

	cmd := &cobra.Command{
		Use:   "uninstall NAME",
		Short: "Uninstall a release, deleting its managed resources.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := g.buildController()
			if err != nil {
				return err
			}
			if err := ctrl.Uninstall(cmd.Context(), args[0], resolveNamespace(g, namespace), release.UninstallOptions{
				KeepHistory: keepHistory, DeleteCRDs: deleteCRDs, DisableHooks: disableHooks,
				Timeout: timeout, CRDConfirmToken: crdConfirmToken,
			}); err != nil {
				return err
			}
			fmt.Fprintf(g.streams.Out, "release %q uninstalled\n", args[0])
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&namespace, "namespace", "n", "", "Target namespace (defaults to the current context's namespace).")
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall uninstall timeout.")
	f.BoolVar(&keepHistory, "keep-history", false, "Retain revision history instead of deleting it.")
	f.BoolVar(&deleteCRDs, "delete-crds", false, "Delete CRDs this release installed (requires --confirm-crd-deletion when custom resource instances still exist).")
	f.StringVar(&crdConfirmToken, "confirm-crd-deletion", "", "Confirmation token required alongside --delete-crds when custom resource instances still exist.")
	f.BoolVar(&disableHooks, "no-hooks", false, "Skip pre/post-uninstall hooks.")
	return cmd
}
