package factory

import (
	"fmt"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/llm"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/llm/huggingface"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/llm/ollama"
)

type Config struct {
	Provider       string // "ollama" or "huggingface"
	Model          string
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model, cfg.RequestTimeout), nil
	case "huggingface":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("huggingface provider requires an API key")
		}
		return huggingface.NewHuggingFaceProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
