package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "chatrelay"
	DefaultPGSSLMode       = "disable"
	DefaultGraphAPIVersion = "v24.0"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultPollInterval    = 1
	DefaultRunTimeout      = 300
	DefaultDedupWindowMin  = 30
	DefaultDedupMaxEntries = 1000
	DefaultSheetsWorksheet = "Contacts"
	DefaultSheetsMsgSheet  = "Messages"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	OpenAI   OpenAIConfig   `toml:"openai"`
	Postgres PostgresConfig `toml:"postgres"`
	Sheets   SheetsConfig   `toml:"sheets"`
	Dedup    DedupConfig    `toml:"dedup"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type WhatsAppConfig struct {
	AccessToken   string `toml:"access_token"`
	VerifyToken   string `toml:"verify_token"`
	PhoneNumberID string `toml:"phone_number_id"`
	APIVersion    string `toml:"api_version"`
	AdminNumber   string `toml:"admin_number"`
}

type OpenAIConfig struct {
	APIKey              string `toml:"api_key"`
	AssistantID         string `toml:"assistant_id"`
	BaseURL             string `toml:"base_url"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	RunTimeoutSeconds   int    `toml:"run_timeout_seconds"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// URL renders the pool connection string.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// SheetsConfig configures the secondary contact ledger. An empty
// spreadsheet id disables the ledger entirely.
type SheetsConfig struct {
	SpreadsheetID     string `toml:"spreadsheet_id"`
	CredentialsFile   string `toml:"credentials_file"`
	Worksheet         string `toml:"worksheet"`
	MessagesWorksheet string `toml:"messages_worksheet"`
}

type DedupConfig struct {
	WindowMinutes int `toml:"window_minutes"`
	MaxEntries    int `toml:"max_entries"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		WhatsApp: WhatsAppConfig{
			APIVersion: DefaultGraphAPIVersion,
		},
		OpenAI: OpenAIConfig{
			BaseURL:             DefaultOpenAIBaseURL,
			PollIntervalSeconds: DefaultPollInterval,
			RunTimeoutSeconds:   DefaultRunTimeout,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Sheets: SheetsConfig{
			Worksheet:         DefaultSheetsWorksheet,
			MessagesWorksheet: DefaultSheetsMsgSheet,
		},
		Dedup: DedupConfig{
			WindowMinutes: DefaultDedupWindowMin,
			MaxEntries:    DefaultDedupMaxEntries,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
