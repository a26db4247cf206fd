package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHeadsCmd() *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "heads",
		Short: "List branch heads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			h, err := w.session.Heads()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, bh := range h.BranchHeads() {
				if branch != "" && bh.Branch != branch {
					continue
				}
				fmt.Fprintf(out, "%s %s\n", bh.ID, bh.Branch)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "only list heads of this branch")
	return cmd
}
