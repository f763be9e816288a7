// ABOUTME: Layered configuration for the fieldops server and CLI.
// ABOUTME: Defaults, then an optional YAML file, then .env files and the process environment.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/2389/fieldops/internal/report"
	"github.com/2389/fieldops/internal/tzclock"
)

// Environment variable names.
const (
	EnvConfigFile      = "FIELDOPS_CONFIG"
	EnvTimezone        = "APP_TZ"
	EnvReportMode      = "REPORT_MODE"
	EnvDebugReport     = "DEBUG_REPORT"
	EnvPort            = "FIELDOPS_PORT"
	EnvDBPath          = "FIELDOPS_DB_PATH"
	EnvReportCron      = "REPORT_CRON"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvOpenAIModel     = "OPENAI_MODEL"
	EnvNaiveTimestamps = "NAIVE_TIMESTAMPS"
)

// DotEnvFiles are loaded in order when present. Earlier files win, and
// nothing overrides a variable already set in the environment.
var DotEnvFiles = []string{".env.local", ".env"}

type Config struct {
	// Timezone is the IANA zone every report day is computed in.
	Timezone string `yaml:"timezone"`

	// ReportMode is INTERSECT or CLAMP.
	ReportMode string `yaml:"report_mode"`

	DebugReport bool `yaml:"debug_report"`

	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// ReportCron is a five-field cron spec evaluated in Timezone. Empty
	// disables the scheduled report.
	ReportCron string `yaml:"report_cron"`

	OpenAIKey   string `yaml:"openai_api_key"`
	OpenAIModel string `yaml:"openai_model"`

	// NaiveTimestamps only affects databases created from scratch.
	NaiveTimestamps bool `yaml:"naive_timestamps"`
}

func Default() *Config {
	return &Config{
		Timezone:    "America/New_York",
		ReportMode:  string(report.DefaultMode),
		Port:        "9000",
		DBPath:      "./fieldops.db",
		OpenAIModel: "gpt-4o-mini",
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $FIELDOPS_CONFIG when path is empty), .env files and the environment.
func Load(path string) (*Config, error) {
	for _, f := range DotEnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Timezone, EnvTimezone)
	setString(&c.ReportMode, EnvReportMode)
	setString(&c.Port, EnvPort)
	setString(&c.DBPath, EnvDBPath)
	setString(&c.ReportCron, EnvReportCron)
	setString(&c.OpenAIKey, EnvOpenAIKey)
	setString(&c.OpenAIModel, EnvOpenAIModel)
	if err := setBool(&c.DebugReport, EnvDebugReport); err != nil {
		return err
	}
	return setBool(&c.NaiveTimestamps, EnvNaiveTimestamps)
}

// Validate rejects an unknown timezone or report mode.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("database path is required")
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := tzclock.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvTimezone, err)
	}
	return loc, nil
}

func (c *Config) Mode() (report.Mode, error) {
	m, err := report.ParseMode(c.ReportMode)
	if err != nil {
		return "", fmt.Errorf("%s: %w", EnvReportMode, err)
	}
	return m, nil
}

// ReportSettings converts the config into resolver settings.
func (c *Config) ReportSettings() (report.Settings, error) {
	m, err := c.Mode()
	if err != nil {
		return report.Settings{}, err
	}
	return report.Settings{Mode: m, Debug: c.DebugReport}, nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}
