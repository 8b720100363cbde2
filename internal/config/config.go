package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "10s" style strings in YAML; a bare integer is taken as
// nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if n, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the crash client configuration. Values come from an optional
// YAML file with environment variables taking precedence.
type Config struct {
	WSURL             string   `yaml:"ws_url"`
	APIBase           string   `yaml:"api_base"`
	AuthToken         string   `yaml:"auth_token"`
	InitData          string   `yaml:"init_data"`
	NATSURL           string   `yaml:"nats_url"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	GrowthRate        float64  `yaml:"growth_rate"`
}

func Default() Config {
	return Config{
		WSURL:             "wss://crash.example.com/ws",
		APIBase:           "https://crash.example.com/api/crash",
		HeartbeatInterval: Duration(10 * time.Second),
	}
}

// Load reads the optional config file, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.WSURL = getEnv("CRASH_WS_URL", cfg.WSURL)
	cfg.APIBase = getEnv("CRASH_API_BASE", cfg.APIBase)
	cfg.AuthToken = getEnv("CRASH_AUTH_TOKEN", cfg.AuthToken)
	cfg.InitData = getEnv("CRASH_INIT_DATA", cfg.InitData)
	cfg.NATSURL = getEnv("CRASH_NATS_URL", cfg.NATSURL)
	cfg.GrowthRate = getEnvAsFloat("CRASH_GROWTH_RATE", cfg.GrowthRate)

	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = Duration(10 * time.Second)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
