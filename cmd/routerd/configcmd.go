package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Plumbridge/FinP2P-sub003/config"
)

func initConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "inspect and validate router configuration",
	}
	configCmd.AddCommand(initConfigValidateCmd())
	return configCmd
}

func initConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "load the configuration file and run every validation check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("%s: configuration valid (routerId=%s)\n", path, cfg.RouterID)
			return nil
		},
	}
}
