package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Groq    GroqConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port           int
	FrontendOrigin string
	Environment    string
}

type GroqConfig struct {
	BaseURL  string
	APIKey   string
	STTModel string
	LLMModel string
	Language string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8000,
			FrontendOrigin: "http://localhost:3000",
			Environment:    "development",
		},
		Groq: GroqConfig{
			BaseURL:  "https://api.groq.com/openai/v1",
			STTModel: "whisper-large-v3",
			LLMModel: "llama-3.1-8b-instant",
			Language: "id",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "suaraniaga")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "suaraniaga")
}

// Load builds the configuration from defaults and SUARA_* environment
// variables. The Groq API key is the only required value.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Groq.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Groq API key. Set it via environment variable SUARA_GROQ_API_KEY")
	}

	return cfg, nil
}
