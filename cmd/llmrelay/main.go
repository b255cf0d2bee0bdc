// llmrelay
//
// A small HTTP service that forwards prompts to a hosted LLM with a fixed
// model and temperature and returns the completion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jxucoder/llmrelay"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "llmrelay",
	Short: "llmrelay - fixed-parameter LLM completion relay",
	Long: `llmrelay forwards prompts to a hosted LLM using a fixed model and
temperature and returns the completion over HTTP.

  llmrelay serve                                   Start the server
  llmrelay complete "What is 2+2?"                 Send a prompt to a running server
  llmrelay config show                             Show current configuration
  llmrelay config set OPENAI_API_KEY sk-...        Set a value in the env file`,
	Version:       llmrelay.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("LLMRELAY_SERVER", "http://localhost:8000"), "llmrelay server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
