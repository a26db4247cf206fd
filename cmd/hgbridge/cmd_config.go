package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hgbridge/pkg/config"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write repository configuration",
	}
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigListCmd())
	return cmd
}

func loadConfig() (*repo.Repo, *config.Config, error) {
	r, err := repo.Open(".")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(r.ConfigPath())
	if err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			return config.Write(r.ConfigPath(), cfg)
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every config value and remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range config.Keys {
				v, err := cfg.Get(k)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s=%s\n", k, v)
			}
			for _, name := range cfg.RemoteNames() {
				fmt.Fprintf(out, "remotes.%s=%s\n", name, cfg.Remotes[name])
			}
			return nil
		},
	}
}
