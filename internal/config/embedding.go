package config

import (
	"fmt"
	"os"
)

// EmbeddingConfig configures the text embedding provider used by the search index.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // jina or openai-compatible
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	APIKeyEnv  string `mapstructure:"api_key_env"` // env var holding the key when api_key is empty
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ResolveEnvVars fills APIKey from APIKeyEnv when it is not set directly.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}

// Validate checks the fields needed to call the provider.
func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "jina", "openai-compatible":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding %q: model is required", c.Provider)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("embedding %q: api_key is required (set directly or via %s)", c.Provider, c.APIKeyEnv)
	}
	return nil
}
