package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/bootstrap"
)

func newPublishCmd() *cobra.Command {
	var (
		output string
		refs   []string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Write the current metadata as a bootstrap bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			var dst io.Writer = cmd.OutOrStdout()
			var f *os.File
			if output != "" && output != "-" {
				f, err = os.Create(output)
				if err != nil {
					return err
				}
				dst = f
			}
			commit, err := bootstrap.Publish(dst, w.session, refs...)
			if f != nil {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}
			if err != nil {
				return err
			}
			if f != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "published metadata %s to %s\n", commit, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "bundle file (default stdout)")
	cmd.Flags().StringSliceVar(&refs, "ref", nil, "ref names to advertise (default "+bootstrap.DefaultPublishRef+")")
	return cmd
}
