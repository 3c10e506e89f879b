// Package endpoints implements the proposer HTTP API. Each endpoint also
// provides the CLI command that calls it.
package endpoints

import (
	"github.com/jackzampolin/proposer/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Analysis endpoints
		&AnalyzeEndpoint{},
		&EnhanceEndpoint{},

		// Asynchronous run endpoints
		&StartAnalysisEndpoint{},
		&ListAnalysesEndpoint{},
		&GetAnalysisEndpoint{},
		&CancelAnalysisEndpoint{},

		// LLM call history endpoints
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},

		// Prompt endpoints
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},

		// Config endpoints
		&ConfigEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// AnalysisCommands returns endpoints for asynchronous run operations.
// This groups them under the "analyses" subcommand.
func AnalysisCommands() []api.Endpoint {
	return []api.Endpoint{
		&StartAnalysisEndpoint{},
		&ListAnalysesEndpoint{},
		&GetAnalysisEndpoint{},
		&CancelAnalysisEndpoint{},
	}
}

// LLMCallCommands returns endpoints for LLM call history operations.
// This groups them under the "llmcalls" subcommand.
func LLMCallCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},
	}
}

// PromptCommands returns endpoints for prompt operations.
// This groups them under the "prompts" subcommand.
func PromptCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
	}
}
