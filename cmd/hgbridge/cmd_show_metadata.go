package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/hg"
)

func newShowMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-metadata <node>",
		Short: "Show the native commit and side record of a changeset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hg.ParseChangesetID(args[0])
			if err != nil {
				return err
			}
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			commit, err := w.session.ChangesetCommit(id)
			if err != nil {
				return err
			}
			md, err := w.session.CommitMetadata(commit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "commit %s\n", commit)
			fmt.Fprintf(out, "%s\n", md.Serialize())
			return nil
		},
	}
}
