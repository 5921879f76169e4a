package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the gatemail application
var rootCmd = &cobra.Command{
	Use:   "gatemail",
	Short: "Trust-gated mail store and MCP server for AI agents",
	Long: `gatemail ingests inbound email into a local store behind a sender
allowlist and exposes it to AI assistants over the Model Context
Protocol (MCP).

Messages from unapproved senders stay pending and invisible until the
sender is approved; approval retroactively releases everything they
already sent. Outbound mail goes through SMTP or an HTTP provider API
and is recorded in the same store and threads as inbound mail.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gatemail version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gatemail version %s\n", version)
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newVersionCmd())
}
