package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/config"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty hgbridge repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			r, err := repo.Init(abs)
			if err != nil {
				return err
			}
			if err := config.Write(r.ConfigPath(), config.Default()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty hgbridge repository in %s\n", r.Dir+string(filepath.Separator))
			return nil
		},
	}
}
