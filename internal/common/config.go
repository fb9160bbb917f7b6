package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Jobs        JobsConfig      `toml:"jobs"`
	Browser     BrowserConfig   `toml:"browser"`
	Scrape      ScrapeConfig    `toml:"scrape"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Export      ExportConfig    `toml:"export"`
}

type ServerConfig struct {
	Port         int    `toml:"port"`
	Host         string `toml:"host"`
	WriteTimeout string `toml:"write_timeout"` // Scrape requests are synchronous, keep this generous
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Type   string       `toml:"type"` // "memory" or "badger"
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// JobsConfig controls retention of finished job records
type JobsConfig struct {
	TTL           string `toml:"ttl"`            // e.g. "1h" - terminal records older than this are swept
	SweepSchedule string `toml:"sweep_schedule"` // cron expression with seconds field
}

// BrowserConfig controls the headless browser used for scraping
type BrowserConfig struct {
	Headless           bool   `toml:"headless"`
	NoSandbox          bool   `toml:"no_sandbox"`
	DisableGPU         bool   `toml:"disable_gpu"`
	UserAgent          string `toml:"user_agent"`
	AcceptLanguage     string `toml:"accept_language"`
	ViewportWidth      int    `toml:"viewport_width"`
	ViewportHeight     int    `toml:"viewport_height"`
	StartupTimeout     string `toml:"startup_timeout"`
	NavigationTimeout  string `toml:"navigation_timeout"`
	NavigationAttempts int    `toml:"navigation_attempts"`
	NavigationBackoff  string `toml:"navigation_backoff"` // base delay, doubled per attempt
	PacingMin          string `toml:"pacing_min"`         // main session request delay window
	PacingMax          string `toml:"pacing_max"`
	WorkerPacingMin    string `toml:"worker_pacing_min"` // detail worker request delay window
	WorkerPacingMax    string `toml:"worker_pacing_max"`
}

// ScrapeConfig controls the scrape job engine
type ScrapeConfig struct {
	Workers          int    `toml:"workers"`
	MaxRetryRounds   int    `toml:"max_retry_rounds"`
	DetailEndpoint   string `toml:"detail_endpoint"`
	DetailTimeout    string `toml:"detail_timeout"`
	ClickTimeout     string `toml:"click_timeout"`
	DefaultTimeout   string `toml:"default_timeout"` // content probe wait when the request has no timeoutMs
	MinTimeout       string `toml:"min_timeout"`
	StabilizePasses  int    `toml:"stabilize_passes"`
	StabilizePause   string `toml:"stabilize_pause"`
	SettleDelay      string `toml:"settle_delay"`
	ItemDelay        string `toml:"item_delay"`
	SectionDelay     string `toml:"section_delay"`
	DetailDelay      string `toml:"detail_delay"`
	ProgressInterval int    `toml:"progress_interval"` // detail progress is reported every N items
}

type WebSocketConfig struct {
	ThrottleInterval string `toml:"throttle_interval"` // minimum gap between progress frames
	PollInterval     string `toml:"poll_interval"`
}

// ExportConfig controls the local export writer and its credential
type ExportConfig struct {
	Dir         string `toml:"dir"`
	Format      string `toml:"format"`       // "json" or "yaml"
	StaticToken string `toml:"static_token"` // optional bearer for remote destinations
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:         8085,
			Host:         "localhost",
			WriteTimeout: "15m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path: "./data/jobs",
			},
		},
		Jobs: JobsConfig{
			TTL:           "1h",
			SweepSchedule: "0 */5 * * * *",
		},
		Browser: BrowserConfig{
			Headless:           true,
			NoSandbox:          true,
			DisableGPU:         true,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			AcceptLanguage:     "en-US,en;q=0.9",
			ViewportWidth:      1280,
			ViewportHeight:     900,
			StartupTimeout:     "30s",
			NavigationTimeout:  "30s",
			NavigationAttempts: 3,
			NavigationBackoff:  "1s",
			PacingMin:          "100ms",
			PacingMax:          "300ms",
			WorkerPacingMin:    "150ms",
			WorkerPacingMax:    "250ms",
		},
		Scrape: ScrapeConfig{
			Workers:          3,
			MaxRetryRounds:   10,
			DetailEndpoint:   "/_p/api/getMenuItemV1",
			DetailTimeout:    "15s",
			ClickTimeout:     "8s",
			DefaultTimeout:   "60s",
			MinTimeout:       "10s",
			StabilizePasses:  50,
			StabilizePause:   "250ms",
			SettleDelay:      "3s",
			ItemDelay:        "200ms",
			SectionDelay:     "500ms",
			DetailDelay:      "200ms",
			ProgressInterval: 10,
		},
		WebSocket: WebSocketConfig{
			ThrottleInterval: "500ms",
			PollInterval:     "250ms",
		},
		Export: ExportConfig{
			Dir:    "./exports",
			Format: "json",
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := ValidateSweepSchedule(config.Jobs.SweepSchedule); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies HARVESTER_* environment variables to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HARVESTER_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("HARVESTER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("HARVESTER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging
	if level := os.Getenv("HARVESTER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("HARVESTER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitString(output, ",")
	}

	// Storage
	if storageType := os.Getenv("HARVESTER_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if path := os.Getenv("HARVESTER_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	// Jobs
	if ttl := os.Getenv("HARVESTER_JOBS_TTL"); ttl != "" {
		config.Jobs.TTL = ttl
	}
	if schedule := os.Getenv("HARVESTER_JOBS_SWEEP_SCHEDULE"); schedule != "" {
		config.Jobs.SweepSchedule = schedule
	}

	// Browser
	if headless := os.Getenv("HARVESTER_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}
	if ua := os.Getenv("HARVESTER_BROWSER_USER_AGENT"); ua != "" {
		config.Browser.UserAgent = ua
	}

	// Scrape
	if workers := os.Getenv("HARVESTER_SCRAPE_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			config.Scrape.Workers = w
		}
	}
	if rounds := os.Getenv("HARVESTER_SCRAPE_MAX_RETRY_ROUNDS"); rounds != "" {
		if r, err := strconv.Atoi(rounds); err == nil && r >= 0 {
			config.Scrape.MaxRetryRounds = r
		}
	}
	if endpoint := os.Getenv("HARVESTER_SCRAPE_DETAIL_ENDPOINT"); endpoint != "" {
		config.Scrape.DetailEndpoint = endpoint
	}

	// Export
	if dir := os.Getenv("HARVESTER_EXPORT_DIR"); dir != "" {
		config.Export.Dir = dir
	}
	if token := os.Getenv("HARVESTER_EXPORT_TOKEN"); token != "" {
		config.Export.StaticToken = token
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateSweepSchedule checks the job sweep cron expression (6 fields, seconds first)
func ValidateSweepSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid jobs.sweep_schedule %q: %w", schedule, err)
	}
	return nil
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// splitString splits a string by separator and trims whitespace
func splitString(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
