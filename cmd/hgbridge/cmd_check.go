package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/bridge"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Re-validate the file revisions tracked by the last import",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			ok, err := w.session.CheckFiles(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("file check failed; see refs/hgbridge/%s", bridge.BrokenRef)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
