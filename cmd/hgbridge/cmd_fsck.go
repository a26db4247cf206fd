package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFsckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Verify every stored changeset, manifest and file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			report, err := w.session.Fsck(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range report.Problems {
				fmt.Fprintf(out, "error: %s\n", p)
			}
			if !report.OK() {
				return fmt.Errorf("fsck: %d problems", len(report.Problems))
			}
			fmt.Fprintf(out, "ok: verified %d changesets, %d manifests, %d files\n",
				report.Changesets, report.Manifests, report.Files)
			return nil
		},
	}
}
