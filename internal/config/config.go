package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type APIConfig struct {
	Addr        string
	DatabaseURL string
	// AdminToken guards the owner endpoints. Empty disables them.
	AdminToken string
	// SeasonSeedPath optionally points at a YAML season seed applied to an
	// empty database on startup.
	SeasonSeedPath string
	MetricsEnabled bool
}

type CLIConfig struct {
	APIBaseURL string
	AdminToken string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("SIEGE_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminToken:     strings.TrimSpace(os.Getenv("SIEGE_ADMIN_TOKEN")),
		SeasonSeedPath: strings.TrimSpace(os.Getenv("SIEGE_SEASON_SEED")),
		MetricsEnabled: envBoolDefault("SIEGE_METRICS", true),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("SIEGE_API_BASE_URL", "http://localhost:8080"), "/"),
		AdminToken: strings.TrimSpace(os.Getenv("SIEGE_ADMIN_TOKEN")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
