package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/hgbridge/pkg/bootstrap"
	"github.com/odvcencio/hgbridge/pkg/sshsig"
)

func newCloneMetadataCmd() *cobra.Command {
	var (
		hgURL  string
		branch string
	)

	cmd := &cobra.Command{
		Use:   "clone-metadata <remote|url|path>",
		Short: "Bootstrap an empty repository from published metadata",
		Long: "Fetch a metadata bundle and install it. The metadata ref is chosen\n" +
			"from --branch, or from candidates derived from --hg-url, falling back\n" +
			"to \"metadata\".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			var allowed []ssh.PublicKey
			if path := w.cfg.Bootstrap.AllowedSigners; path != "" {
				allowed, err = sshsig.LoadAllowedSigners(path)
				if err != nil {
					return err
				}
			}
			m := bootstrap.NewMerger(w.session, bootstrap.MergerOptions{
				Fetcher:        bootstrap.NewFetcher(w.cfg, w.log),
				Logger:         w.log,
				AllowedSigners: allowed,
			})
			location := w.cfg.RemoteURL(args[0])
			commit, err := m.Merge(cmd.Context(), location, hgURL, branch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "metadata %s from %s\n", commit, location)
			return nil
		},
	}
	cmd.Flags().StringVar(&hgURL, "hg-url", "", "Mercurial URL used to pick the metadata branch")
	cmd.Flags().StringVar(&branch, "branch", "", "explicit metadata branch")
	return cmd
}
