// Package config loads cmd/server's configuration from a JSONC file,
// with environment variables (optionally read from a .env file) able to
// override individual fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
)

// Config holds cmd/server's runtime settings.
type Config struct {
	DataDir            string `json:"data_dir"`
	Addr               string `json:"addr"`
	Sync               bool   `json:"sync"`
	KeydirShards       int    `json:"keydir_shards"`
	AutoMergeThreshold int    `json:"auto_merge_threshold"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		DataDir:      "./data",
		Addr:         ":1729",
		KeydirShards: 16,
	}
}

// Load reads path (a JSONC file, comments and trailing commas allowed) if it
// exists, applies it over Default(), then applies any BITKEG_* environment
// variables on top — loading them from a .env file in the current working
// directory first when one is present. A missing config file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			standardized, err := hujson.Standardize(data)
			if err != nil {
				return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
			}
			if err := json.Unmarshal(standardized, &cfg); err != nil {
				return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// optional
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("BITKEG_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("BITKEG_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("BITKEG_SYNC"); ok {
		cfg.Sync = v == "1" || v == "true"
	}
	if v, ok := os.LookupEnv("BITKEG_KEYDIR_SHARDS"); ok {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.KeydirShards = n
		}
	}
	if v, ok := os.LookupEnv("BITKEG_AUTO_MERGE_THRESHOLD"); ok {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.AutoMergeThreshold = n
		}
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %q", s)
	}
	return n, nil
}
