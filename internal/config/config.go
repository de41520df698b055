package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	APIToken        string
	SessionAPIURL   string
	SessionAPIToken string
	NatsURL         string
	NatsToken       string
	LogLevel        string
	ScriptPath      string
	StateDir        string
}

func Load() Config {
	return Config{
		Port:            envInt("CANVASS_PORT", 8760),
		APIToken:        envStr("CANVASS_API_TOKEN", ""),
		SessionAPIURL:   envStr("SESSION_API_URL", "http://localhost:5000"),
		SessionAPIToken: envStr("SESSION_API_TOKEN", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		ScriptPath:      envStr("CANVASS_SCRIPT", ""),
		StateDir:        envStr("CANVASS_STATE_DIR", "~/.canvass"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
