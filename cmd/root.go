package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "datahunter",
		Short: "An autonomous agent that hunts for open data sources.",
		Long: `datahunter crawls search results and curated index documents for
links to public datasets, classifies each one and streams its progress to a
browser dashboard. Discovered sources can be exported as CSV.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./datahunter.yaml, /etc/datahunter or $HOME/.datahunter)")

	cmd.AddCommand(newServeCmd(&cfgFile))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
