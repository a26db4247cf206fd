package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/hg"
)

func newCatChangesetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat-changeset <node>",
		Short: "Print a regenerated changeset",
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

			raw, err := w.session.ReadChangeset(id)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}

func newCatManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat-manifest <node>",
		Short: "Print a stored manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hg.ParseManifestID(args[0])
			if err != nil {
				return err
			}
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			text, err := w.session.ReadManifest(id)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(text)
			return err
		},
	}
}

func newCatFileCmd() *cobra.Command {
	var meta bool

	cmd := &cobra.Command{
		Use:   "cat-file <node>",
		Short: "Print a stored file revision, metadata block included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hg.ParseFileID(args[0])
			if err != nil {
				return err
			}
			w, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			text, err := w.session.ReadFile(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !meta {
				_, err = out.Write(text)
				return err
			}
			block, _ := hg.SplitFile(text)
			fields := hg.ParseFileMeta(block)
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %s\n", k, fields[k])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&meta, "meta", false, "print only the metadata fields (copy, copyrev)")
	return cmd
}
