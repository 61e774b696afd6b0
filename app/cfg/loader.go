package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Remote sources
	Token      string `long:"token" env:"TOKEN" description:"Bearer token for the catalog API"`
	IndexURL   string `long:"index-url" env:"INDEX_URL" default:"https://bgm.tv/user/lilyurey/index" description:"HTML listing of seasonal indices"`
	APIBaseURL string `long:"api-base-url" env:"API_BASE_URL" default:"https://api.bgm.tv" description:"Catalog API base URL"`
	UserAgent  string `long:"user-agent" env:"USER_AGENT" default:"season-rank/1.0 (https://github.com/lysyi3m/season-rank)" description:"User agent string for HTTP requests"`

	// Storage
	DataDir       string `long:"data-dir" env:"DATA_DIR" default:"./static" description:"Directory holding one JSON document per season"`
	OverridesFile string `long:"overrides-file" env:"OVERRIDES_FILE" description:"Optional YAML file with season include/exclude overrides"`

	// Service
	Port           string  `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey   string  `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	RateLimit      float64 `long:"rate-limit" env:"RATE_LIMIT" default:"10" description:"Requests per second per client on season endpoints (0 disables)"`
	RateBurst      int     `long:"rate-burst" env:"RATE_BURST" default:"20" description:"Burst size for the season endpoint rate limit"`
	RefreshAt      string  `long:"refresh-at" env:"REFRESH_AT" default:"04:00" description:"Daily refresh time (HH:MM, local timezone)"`
	RefreshOnStart bool    `long:"refresh-on-start" env:"REFRESH_ON_START" description:"Enqueue a full refresh when the service starts"`

	// Application metadata
	EnvFile  string `long:"env-file" env:"ENV_FILE" default:".env" description:"dotenv file loaded before the environment is read"`
	Timezone string `long:"timezone" env:"TZ" default:"Asia/Shanghai" description:"Timezone for timestamps and the daily trigger"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads the dotenv file, then parses args and the environment.
// It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	if err := loadEnvFile(envFileFromArgs(args)); err != nil {
		return nil, err
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	refreshHour, refreshMinute, err := parseClock(raw.RefreshAt)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh time %q: %w", raw.RefreshAt, err)
	}

	cfg := &Cfg{
		Token:          raw.Token,
		IndexURL:       raw.IndexURL,
		APIBaseURL:     strings.TrimRight(raw.APIBaseURL, "/"),
		UserAgent:      raw.UserAgent,
		DataDir:        raw.DataDir,
		OverridesFile:  raw.OverridesFile,
		Port:           raw.Port,
		APIAccessKey:   raw.APIAccessKey,
		RateLimit:      raw.RateLimit,
		RateBurst:      raw.RateBurst,
		RefreshHour:    refreshHour,
		RefreshMinute:  refreshMinute,
		RefreshOnStart: raw.RefreshOnStart,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

// envFileFromArgs finds the dotenv path before go-flags runs, since the
// file has to be applied to the environment that go-flags reads.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		if value, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return value
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return cmp.Or(os.Getenv("ENV_FILE"), ".env")
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func parseClock(value string) (int, int, error) {
	hourPart, minutePart, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour must be 0-23")
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute must be 0-59")
	}
	return hour, minute, nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			slog.Debug("Timezone configured", "timezone", timezone)
		}
	}
	return nil
}
