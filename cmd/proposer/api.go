package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running proposer server via HTTP.

These commands require a running server (proposer serve).
Use --server to specify a custom server URL.

Examples:
  proposer api health                              # Check server health
  proposer api analyze doc.md -s sections.yaml     # Analyze on the server
  proposer api analyses start doc.md -s s.yaml -w  # Start a run and wait
  proposer api llmcalls list --run-id <id>         # Calls made by a run`,
}

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Asynchronous analysis run commands",
}

var llmcallsCmd = &cobra.Command{
	Use:   "llmcalls",
	Short: "LLM call history commands",
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Prompt inspection commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func addCommands(parent *cobra.Command, eps []api.Endpoint) {
	for _, ep := range eps {
		parent.AddCommand(ep.Command(getServerURL))
	}
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Top level of api
	addCommands(apiCmd, []api.Endpoint{
		&endpoints.HealthEndpoint{},
		&endpoints.ReadyEndpoint{},
		&endpoints.StatusEndpoint{},
		&endpoints.AnalyzeEndpoint{},
		&endpoints.EnhanceEndpoint{},
		&endpoints.ConfigEndpoint{},
		&endpoints.SwaggerEndpoint{},
	})

	addCommands(analysesCmd, endpoints.AnalysisCommands())
	addCommands(llmcallsCmd, endpoints.LLMCallCommands())
	addCommands(promptsCmd, endpoints.PromptCommands())

	apiCmd.AddCommand(analysesCmd)
	apiCmd.AddCommand(llmcallsCmd)
	apiCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(apiCmd)
}
