// Command routerd is the router's CLI entrypoint: it loads configuration,
// wires the subsystems together, and runs the router until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "routerd",
		Short: "FinP2P router daemon",
	}
	root.PersistentFlags().String("config", "config.yaml", "path to router configuration file")
	root.AddCommand(initStartCmd())
	root.AddCommand(initConfigCmd())
	root.AddCommand(initVersionCmd())
	return root
}
