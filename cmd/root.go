package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the seekmail application
var rootCmd = &cobra.Command{
	Use:   "seekmail",
	Short: "Gmail account management and job-search automation over MCP",
	Long: `seekmail exposes Gmail account management and job-search automation
as MCP (Model Context Protocol) tools for AI assistants.

It manages the OAuth credential lifecycle, layers virtual folders and
declarative filter rules on Gmail's flat label model, searches external
job postings, ranks them against your profile, and emails a periodic
digest of the best matches.`,
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
	rootCmd.SetVersionTemplate(`{{printf "seekmail version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newDigestCmd())
	rootCmd.AddCommand(newVersionCmd())
}
