package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xhad/askdoc/internal/types"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"

	BackendMemory   = "memory"
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"
)

type Config struct {
	LLM struct {
		Provider       string  `yaml:"provider"`
		APIKeyEnv      string  `yaml:"api_key_env"`
		BaseURL        string  `yaml:"base_url"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
		BatchSize      int     `yaml:"batch_size"`
	} `yaml:"llm"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Retrieval struct {
		TopK            int `yaml:"top_k"`
		MaxContextChars int `yaml:"max_context_chars"`
	} `yaml:"retrieval"`

	Index struct {
		Backend     string `yaml:"backend"`
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
		BatchSize   int    `yaml:"batch_size"`
	} `yaml:"index"`

	Loader struct {
		Password string `yaml:"password"`
		TempDir  string `yaml:"temp_dir"`
	} `yaml:"loader"`

	Server struct {
		Addr        string `yaml:"addr"`
		MaxUploadMB int    `yaml:"max_upload_mb"`
		Title       string `yaml:"title"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/askdoc/config.yaml"),
			"/etc/askdoc/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	var zeros explicitZeros
	if err := yaml.Unmarshal(data, &zeros); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Apply defaults for unset values, then let the environment win
	applyDefaults(config)
	zeros.restore(config)
	mergeWithEnv(config)

	return config, nil
}

// explicitZeros records keys for which zero is a meaningful setting, so
// that applyDefaults does not mistake them for missing values.
type explicitZeros struct {
	LLM struct {
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"llm"`
	Processor struct {
		ChunkOverlap *int `yaml:"chunk_overlap"`
	} `yaml:"processor"`
}

func (z explicitZeros) restore(config *Config) {
	if z.LLM.Temperature != nil {
		config.LLM.Temperature = *z.LLM.Temperature
	}
	if z.Processor.ChunkOverlap != nil {
		config.Processor.ChunkOverlap = *z.Processor.ChunkOverlap
	}
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return getDefaultConfig()
}

func getDefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderGoogleAI
	}
	config.LLM.Provider = strings.ToLower(config.LLM.Provider)

	switch config.LLM.Provider {
	case ProviderGoogleAI:
		if config.LLM.APIKeyEnv == "" {
			config.LLM.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if config.LLM.Model == "" {
			config.LLM.Model = "gemini-pro"
		}
		if config.LLM.EmbeddingModel == "" {
			config.LLM.EmbeddingModel = "embedding-001"
		}
	case ProviderOpenAI:
		if config.LLM.APIKeyEnv == "" {
			config.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if config.LLM.Model == "" {
			config.LLM.Model = "gpt-4o-mini"
		}
		if config.LLM.EmbeddingModel == "" {
			config.LLM.EmbeddingModel = "text-embedding-3-small"
		}
	case ProviderOllama:
		if config.LLM.BaseURL == "" {
			config.LLM.BaseURL = "http://localhost:11434"
		}
		if config.LLM.Model == "" {
			config.LLM.Model = "mistral"
		}
		if config.LLM.EmbeddingModel == "" {
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2048
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}
	if config.LLM.BatchSize == 0 {
		config.LLM.BatchSize = 100
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 100
		// small windows get a proportional overlap
		if config.Processor.ChunkOverlap >= config.Processor.ChunkSize {
			config.Processor.ChunkOverlap = config.Processor.ChunkSize / 10
		}
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 4
	}
	if config.Retrieval.MaxContextChars == 0 {
		config.Retrieval.MaxContextChars = 12000
	}

	if config.Index.Backend == "" {
		config.Index.Backend = BackendMemory
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "askdoc_chunks"
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 100
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8501"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 200
	}
	if config.Server.Title == "" {
		config.Server.Title = "AskDoc RAG"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}

// NeedsCredential reports whether the provider is a hosted API that
// requires a key.
func (c *Config) NeedsCredential() bool {
	return c.LLM.Provider != ProviderOllama
}

// Credential resolves the API key from the environment variable named by
// llm.api_key_env.
func (c *Config) Credential(getenv func(string) string) (string, error) {
	if !c.NeedsCredential() {
		return "", nil
	}
	key := strings.TrimSpace(getenv(c.LLM.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: %s not found in environment or .env file. Please add it and restart", types.ErrMissingCredential, c.LLM.APIKeyEnv)
	}
	return key, nil
}
