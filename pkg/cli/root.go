package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/imposterd/pkg/config"
)

var (
	// Persistent flags available to all subcommands
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command. Without a subcommand it starts the
// server, so "imposterd --port 3000" and "imposterd start --port 3000" are
// the same.
var rootCmd = &cobra.Command{
	Use:   "imposterd",
	Short: "imposterd runs on-demand test doubles over the network",
	Long: `imposterd creates imposters: simulated tcp, http, https, smtp and custom
services that are started, inspected and stopped through a REST management
API (port 2525 by default).

Options can be given as flags or in a YAML options file (--options); flags
that are set explicitly win.`,
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
	config.RegisterFlags(rootCmd.PersistentFlags())
}
