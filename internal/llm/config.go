package llm

import "time"

// Config selects and tunes the completion provider.
type Config struct {
	Name         string        `mapstructure:"name"`
	HistoryLimit int           `mapstructure:"history_limit"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`

	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Bedrock BedrockConfig `mapstructure:"bedrock"`
	Ollama  OllamaConfig  `mapstructure:"ollama"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	ModelID string  `mapstructure:"model_id"`
	Region  string  `mapstructure:"region"`
	TopP    float64 `mapstructure:"top_p"`
}

// OllamaConfig holds local Ollama provider settings.
type OllamaConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Model returns the model identifier for the configured provider.
func (c Config) Model() string {
	switch c.Name {
	case "openai":
		return c.OpenAI.Model
	case "ollama":
		return c.Ollama.Model
	default:
		return c.Bedrock.ModelID
	}
}
