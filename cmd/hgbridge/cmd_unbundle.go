package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/bridge"
	"github.com/odvcencio/hgbridge/pkg/changegroup"
)

func newUnbundleCmd() *cobra.Command {
	var cgVersion int

	cmd := &cobra.Command{
		Use:   "unbundle <file|->",
		Short: "Import a Mercurial bundle or changegroup",
		Long: "Import a bundle file (HG10UN, HG10GZ, HG10BZ) or a raw changegroup,\n" +
			"then persist the metadata commit. With check.files set, file hashes\n" +
			"are re-validated after the import.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx := cmd.Context()
			var stats *bridge.ImportStats
			switch changegroup.Version(cgVersion) {
			case changegroup.V1:
				stats, err = w.session.ImportBundle(ctx, in)
			case changegroup.V2, changegroup.V3:
				stats, err = w.session.ImportChangegroup(ctx, in, changegroup.Version(cgVersion))
			default:
				return fmt.Errorf("unsupported changegroup version %d", cgVersion)
			}
			if err != nil {
				return err
			}

			commit, err := w.session.StoreMetadata()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d changesets, %d manifests, %d files", stats.Changesets, stats.Manifests, stats.Files)
			if stats.Skipped > 0 {
				fmt.Fprintf(out, " (%d skipped)", stats.Skipped)
			}
			fmt.Fprintf(out, "\nmetadata %s\n", commit)

			if w.cfg.Check.Files {
				ok, err := w.session.CheckFiles(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("post-pull check failed; see refs/hgbridge/%s", bridge.BrokenRef)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cgVersion, "cg-version", 1, "changegroup version of a raw stream (1 also accepts bundle files)")
	return cmd
}
