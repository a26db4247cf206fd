package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "hgbridge 0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hgbridge",
		Short:         "Store Mercurial history in a native object store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "override log.level for this invocation")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newUnbundleCmd())
	root.AddCommand(newHeadsCmd())
	root.AddCommand(newCatChangesetCmd())
	root.AddCommand(newCatManifestCmd())
	root.AddCommand(newCatFileCmd())
	root.AddCommand(newShowMetadataCmd())
	root.AddCommand(newTagsCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newFsckCmd())
	root.AddCommand(newCloneMetadataCmd())
	root.AddCommand(newPublishCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newReflogCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
