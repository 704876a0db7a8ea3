// Package providers selects and constructs a concrete llm.Provider from
// configuration.
package providers

import (
	"fmt"
	"net/http"

	"lavis/internal/config"
	"lavis/internal/llm"
	"lavis/internal/llm/anthropic"
	"lavis/internal/llm/google"
	openaillm "lavis/internal/llm/openai"
)

// Build constructs an llm.Provider based on cfg.LLM.Provider.
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.LLM.Anthropic, httpClient), nil
	case "openai", "local":
		return openaillm.New(cfg.LLM.OpenAI, httpClient), nil
	case "google":
		return google.New(cfg.LLM.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}
