package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "SUARA_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "SUARA_FRONTEND_ORIGIN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.FrontendOrigin = v.(string) },
	},
	{
		env: "SUARA_ENVIRONMENT", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.Environment = v.(string) },
	},
	{
		env: "SUARA_GROQ_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Groq.BaseURL = v.(string) },
	},
	{
		env: "SUARA_GROQ_API_KEY", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Groq.APIKey = v.(string) },
	},
	{
		env: "SUARA_GROQ_STT_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Groq.STTModel = v.(string) },
	},
	{
		env: "SUARA_GROQ_LLM_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Groq.LLMModel = v.(string) },
	},
	{
		env: "SUARA_LANGUAGE", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Groq.Language = v.(string) },
	},
	{
		env: "SUARA_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "SUARA_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
