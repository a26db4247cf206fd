package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List tags merged from the .hgtags of every head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			tags, err := w.session.Tags()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range tags {
				fmt.Fprintf(out, "%s %s\n", t.Node, t.Name)
			}
			return nil
		},
	}
}
