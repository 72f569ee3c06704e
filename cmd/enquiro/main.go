// Command enquiro runs the conversational runtime server and its
// companion CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "enquiro",
	Short: "Personalized conversational runtime over your documents and data",
	Long: `enquiro serves a personalized conversational assistant backed by
ingested documents, a local SQLite store, and a rotating pool of
generative-model credentials.

Start the server with "enquiro start", then talk to it with
"enquiro chat" or over the HTTP and MCP APIs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
