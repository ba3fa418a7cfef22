package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "SUBMISSIONS"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "submissions.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "submissions_session"
	defaultSessionTTLMinutes = 12 * 60
	defaultStorageRoot       = "data/objects"
	defaultPublicBaseURL     = "http://localhost:8080/media"
	defaultAdminDisplayName  = "Administrator"
)

// AppConfig captures runtime configuration for the submissions server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	SecureCookies     bool
	DatabasePath      string
	LogLevel          string
	SigningSecret     string
	CookieName        string
	SessionTTL        time.Duration
	AdminEmail        string
	AdminDisplayName  string
	AdminPasswordHash string
	StorageRoot       string
	PublicBaseURL     string
	DiscordWebhookURL string
	TelemetryEndpoint string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("http.secure_cookies", false)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("admin.display_name", defaultAdminDisplayName)
	configViper.SetDefault("storage.root", defaultStorageRoot)
	configViper.SetDefault("storage.public_base_url", defaultPublicBaseURL)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are ignored; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    splitList(configViper.GetStringSlice("http.allowed_origins")),
		SecureCookies:     configViper.GetBool("http.secure_cookies"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		CookieName:        configViper.GetString("auth.cookie_name"),
		SessionTTL:        time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		AdminEmail:        strings.TrimSpace(configViper.GetString("admin.email")),
		AdminDisplayName:  strings.TrimSpace(configViper.GetString("admin.display_name")),
		AdminPasswordHash: strings.TrimSpace(configViper.GetString("admin.password_hash")),
		StorageRoot:       configViper.GetString("storage.root"),
		PublicBaseURL:     strings.TrimRight(configViper.GetString("storage.public_base_url"), "/"),
		DiscordWebhookURL: strings.TrimSpace(configViper.GetString("discord.webhook_url")),
		TelemetryEndpoint: strings.TrimSpace(configViper.GetString("telemetry.endpoint")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.StorageRoot) == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("storage.public_base_url is required")
	}
	if (c.AdminEmail == "") != (c.AdminPasswordHash == "") {
		return fmt.Errorf("admin.email and admin.password_hash must be set together")
	}
	return nil
}

// splitList flattens comma separated entries, as env values arrive as a single string.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
