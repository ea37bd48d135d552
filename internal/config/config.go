// Package config assembles runtime settings from the process environment, an
// optional dotenv file and the [vars] table of an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrMissingConfig is returned when a required key has no value anywhere.
var ErrMissingConfig = errors.New("missing required configuration")

const (
	DefaultEnvFile  = ".dev.vars"
	DefaultTomlFile = "wrangler.toml"
)

// Config is the full set of settings for one process.
type Config struct {
	YNABToken   string
	BudgetID    string
	YNABBaseURL string

	LoyaltyToken   string
	LoyaltyAPIKey  string
	LoyaltyBaseURL string

	PayeeName        string
	MatchWindowDays  int
	Location         *time.Location
	FetchConcurrency int
	FetchRatePerSec  float64

	BigQueryProject string
	BigQueryDataset string
	ArchiveBucket   string

	SyncInterval time.Duration
	HTTPPort     string
	LogLevel     string
	LogJSON      bool
	DryRun       bool
}

// Sources names the files Load reads. Missing files are skipped.
type Sources struct {
	EnvFile  string
	TomlFile string
}

type wranglerFile struct {
	Vars map[string]interface{} `toml:"vars"`
}

// Load resolves every key with precedence OS environment, then EnvFile, then
// the TOML [vars] table, then the built-in default. Empty values count as
// unset at every layer.
func Load(src Sources) (*Config, error) {
	values, err := merged(src)
	if err != nil {
		return nil, err
	}
	return fromValues(values)
}

func merged(src Sources) (map[string]string, error) {
	values := make(map[string]string)

	if src.TomlFile != "" {
		vars, err := readTomlVars(src.TomlFile)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			values[k] = v
		}
	}

	if src.EnvFile != "" {
		env, err := godotenv.Read(src.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Load: reading %s: %w", src.EnvFile, err)
		}
		for k, v := range env {
			values[k] = v
		}
	}

	for _, key := range knownKeys {
		if v := os.Getenv(key); v != "" {
			values[key] = v
		}
	}

	return values, nil
}

func readTomlVars(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	var file wranglerFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
	}

	vars := make(map[string]string, len(file.Vars))
	for k, v := range file.Vars {
		vars[k] = fmt.Sprint(v)
	}
	return vars, nil
}

var knownKeys = []string{
	"TOKEN", "BUDGET", "YNAB_BASE_URL",
	"LOYALTY_TOKEN", "LOYALTY_API_KEY", "LOYALTY_BASE_URL",
	"PAYEE_NAME", "MATCH_WINDOW_DAYS", "TIMEZONE",
	"FETCH_CONCURRENCY", "FETCH_RATE_PER_SEC",
	"BIGQUERY_PROJECT", "BIGQUERY_DATASET", "ARCHIVE_BUCKET",
	"SYNC_INTERVAL", "HTTP_PORT", "LOG_LEVEL", "LOG_FORMAT", "DRY_RUN",
}

var requiredKeys = []string{"TOKEN", "BUDGET", "LOYALTY_TOKEN", "LOYALTY_API_KEY"}

func fromValues(values map[string]string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
		return def
	}

	var missing []string
	for _, key := range requiredKeys {
		if get(key, "") == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("Load: %w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	cfg := &Config{
		YNABToken:       get("TOKEN", ""),
		BudgetID:        get("BUDGET", ""),
		YNABBaseURL:     get("YNAB_BASE_URL", ""),
		LoyaltyToken:    get("LOYALTY_TOKEN", ""),
		LoyaltyAPIKey:   get("LOYALTY_API_KEY", ""),
		LoyaltyBaseURL:  get("LOYALTY_BASE_URL", ""),
		PayeeName:       get("PAYEE_NAME", "Supervalu"),
		BigQueryProject: get("BIGQUERY_PROJECT", ""),
		BigQueryDataset: get("BIGQUERY_DATASET", "finance"),
		ArchiveBucket:   get("ARCHIVE_BUCKET", ""),
		HTTPPort:        get("HTTP_PORT", "8080"),
		LogLevel:        get("LOG_LEVEL", "info"),
		LogJSON:         strings.EqualFold(get("LOG_FORMAT", "console"), "json"),
	}

	var err error
	if cfg.MatchWindowDays, err = strconv.Atoi(get("MATCH_WINDOW_DAYS", "7")); err != nil || cfg.MatchWindowDays < 1 {
		return nil, fmt.Errorf("Load: invalid MATCH_WINDOW_DAYS %q", values["MATCH_WINDOW_DAYS"])
	}
	if cfg.FetchConcurrency, err = strconv.Atoi(get("FETCH_CONCURRENCY", "4")); err != nil || cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("Load: invalid FETCH_CONCURRENCY %q", values["FETCH_CONCURRENCY"])
	}
	if cfg.FetchRatePerSec, err = strconv.ParseFloat(get("FETCH_RATE_PER_SEC", "5"), 64); err != nil || cfg.FetchRatePerSec <= 0 {
		return nil, fmt.Errorf("Load: invalid FETCH_RATE_PER_SEC %q", values["FETCH_RATE_PER_SEC"])
	}
	if cfg.SyncInterval, err = time.ParseDuration(get("SYNC_INTERVAL", "6h")); err != nil || cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("Load: invalid SYNC_INTERVAL %q", values["SYNC_INTERVAL"])
	}
	if cfg.DryRun, err = strconv.ParseBool(get("DRY_RUN", "false")); err != nil {
		return nil, fmt.Errorf("Load: invalid DRY_RUN %q: %w", values["DRY_RUN"], err)
	}
	if cfg.Location, err = time.LoadLocation(get("TIMEZONE", "Europe/Dublin")); err != nil {
		return nil, fmt.Errorf("Load: invalid TIMEZONE: %w", err)
	}

	return cfg, nil
}
