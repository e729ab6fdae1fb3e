package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var ErrMissingToken = errors.New("TELEGRAM_TOKEN is not set")

const (
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

// Config holds the bot configuration, read from the environment and an
// optional .env file.
type Config struct {
	TelegramToken string

	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	StoreBackend    string
	HeaderRows      int

	UndoWindow   time.Duration
	SessionTTL   time.Duration
	SyncInterval time.Duration
	StoreTimeout time.Duration
	ReminderTime string
	Location     *time.Location
	SalaryRate   decimal.Decimal

	DBPath    string
	StatsAddr string
	FontPath  string

	LogLevel  string
	LogToFile bool
}

// AdminConfig configures the stats dashboard.
type AdminConfig struct {
	Port      string
	BotAPIURL string
}

func newViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads the bot configuration. A missing token is the only fatal
// omission; without sheet settings the bot runs degraded.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("google_sheet_name", "Sheet1")
	v.SetDefault("store_backend", BackendSheets)
	v.SetDefault("header_rows", 4)
	v.SetDefault("undo_window", "10s")
	v.SetDefault("session_ttl", "30m")
	v.SetDefault("sync_interval", "5s")
	v.SetDefault("store_timeout", "15s")
	v.SetDefault("reminder_time", "20:00")
	v.SetDefault("timezone", "Local")
	v.SetDefault("salary_rate", "0.10")
	v.SetDefault("db_path", "finance.db")
	v.SetDefault("stats_addr", ":8080")
	v.SetDefault("font_path", "fonts/DejaVuSans.ttf")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_to_file", false)

	_ = v.BindEnv("telegram_token", "TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("google_credentials_json", "GOOGLE_CREDENTIALS_JSON", "GOOGLE_KEY_JSON")

	cfg := &Config{
		TelegramToken:   strings.TrimSpace(v.GetString("telegram_token")),
		SpreadsheetID:   strings.TrimSpace(v.GetString("google_spreadsheet_id")),
		SheetName:       v.GetString("google_sheet_name"),
		CredentialsJSON: v.GetString("google_credentials_json"),
		CredentialsFile: v.GetString("google_application_credentials"),
		StoreBackend:    strings.ToLower(v.GetString("store_backend")),
		HeaderRows:      v.GetInt("header_rows"),
		UndoWindow:      v.GetDuration("undo_window"),
		SessionTTL:      v.GetDuration("session_ttl"),
		SyncInterval:    v.GetDuration("sync_interval"),
		StoreTimeout:    v.GetDuration("store_timeout"),
		ReminderTime:    v.GetString("reminder_time"),
		DBPath:          v.GetString("db_path"),
		StatsAddr:       v.GetString("stats_addr"),
		FontPath:        v.GetString("font_path"),
		LogLevel:        v.GetString("log_level"),
		LogToFile:       v.GetBool("log_to_file"),
	}

	if cfg.TelegramToken == "" {
		return nil, ErrMissingToken
	}

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	cfg.Location = loc

	rate, err := decimal.NewFromString(strings.Replace(v.GetString("salary_rate"), ",", ".", 1))
	if err != nil {
		return nil, fmt.Errorf("salary rate: %w", err)
	}
	cfg.SalaryRate = rate

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSheets, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.HeaderRows < 0 {
		return fmt.Errorf("HEADER_ROWS must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"UNDO_WINDOW":   c.UndoWindow,
		"SESSION_TTL":   c.SessionTTL,
		"SYNC_INTERVAL": c.SyncInterval,
		"STORE_TIMEOUT": c.StoreTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if !c.SalaryRate.IsPositive() {
		return fmt.Errorf("SALARY_RATE must be positive")
	}
	return nil
}

// SheetsConfigured reports whether there is enough to reach the sheet.
func (c *Config) SheetsConfigured() bool {
	return c.SpreadsheetID != "" && (c.CredentialsJSON != "" || c.CredentialsFile != "")
}

func LoadAdmin() AdminConfig {
	v := newViper()
	v.SetDefault("admin_port", "3000")
	v.SetDefault("bot_api_url", "http://localhost:8080")
	return AdminConfig{
		Port:      v.GetString("admin_port"),
		BotAPIURL: strings.TrimRight(v.GetString("bot_api_url"), "/"),
	}
}
