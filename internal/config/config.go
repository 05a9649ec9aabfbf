package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	TemplateDir    string `mapstructure:"TEMPLATE_DIR"`
	ScratchDir     string `mapstructure:"SCRATCH_DIR"`
	RenderStrategy string `mapstructure:"RENDER_STRATEGY"`

	CredentialsEncryptionKey string        `mapstructure:"CREDENTIALS_ENCRYPTION_KEY"`
	ValkeyURL                string        `mapstructure:"VALKEY_URL"`
	CarrierCacheTTL          time.Duration `mapstructure:"CARRIER_CACHE_TTL"`

	HumbleFaxBaseURL    string `mapstructure:"HUMBLEFAX_BASE_URL"`
	HumbleFaxAccessKey  string `mapstructure:"HUMBLEFAX_ACCESS_KEY"`
	HumbleFaxSecretKey  string `mapstructure:"HUMBLEFAX_SECRET_KEY"`
	HumbleFaxFromNumber string `mapstructure:"HUMBLEFAX_FROM_NUMBER"`

	TwilioBaseURL    string `mapstructure:"TWILIO_BASE_URL"`
	TwilioLookupURL  string `mapstructure:"TWILIO_LOOKUP_URL"`
	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`

	TelnyxBaseURL      string `mapstructure:"TELNYX_BASE_URL"`
	TelnyxAPIKey       string `mapstructure:"TELNYX_API_KEY"`
	TelnyxConnectionID string `mapstructure:"TELNYX_CONNECTION_ID"`
	TelnyxFromNumber   string `mapstructure:"TELNYX_FROM_NUMBER"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"TEMPLATE_DIR", "SCRATCH_DIR", "RENDER_STRATEGY",
	"CREDENTIALS_ENCRYPTION_KEY", "VALKEY_URL", "CARRIER_CACHE_TTL",
	"HUMBLEFAX_BASE_URL", "HUMBLEFAX_ACCESS_KEY", "HUMBLEFAX_SECRET_KEY", "HUMBLEFAX_FROM_NUMBER",
	"TWILIO_BASE_URL", "TWILIO_LOOKUP_URL", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
	"TELNYX_BASE_URL", "TELNYX_API_KEY", "TELNYX_CONNECTION_ID", "TELNYX_FROM_NUMBER",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TEMPLATE_DIR", ".")
	v.SetDefault("SCRATCH_DIR", "")
	v.SetDefault("RENDER_STRATEGY", "context")
	v.SetDefault("CARRIER_CACHE_TTL", "24h")
	v.SetDefault("HUMBLEFAX_BASE_URL", "https://api.humblefax.com")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("TWILIO_LOOKUP_URL", "https://lookups.twilio.com")
	v.SetDefault("TELNYX_BASE_URL", "https://api.telnyx.com")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.IsDev() && cfg.CredentialsEncryptionKey == "" {
		log.Println("WARNING: CREDENTIALS_ENCRYPTION_KEY is not set; provider credentials")
		log.Println("WARNING: can only be supplied through the environment.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequireDatabase reports an error when no DATABASE_URL is configured. The
// bulk CLI runs without a database; serve and migrate do not.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// EncryptionKey decodes CREDENTIALS_ENCRYPTION_KEY. It returns nil when the
// key is unset.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.CredentialsEncryptionKey == "" {
		return nil, nil
	}
	keyBytes, err := hex.DecodeString(c.CredentialsEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
	}
	return keyBytes, nil
}

// Validate checks that the configuration is safe to run. In production the
// credentials key is mandatory because the API configuration store holds
// provider secrets.
func (c *Config) Validate() error {
	if c.RenderStrategy != "context" && c.RenderStrategy != "token" {
		return fmt.Errorf("RENDER_STRATEGY must be \"context\" or \"token\", got %q", c.RenderStrategy)
	}

	if c.IsProduction() && c.CredentialsEncryptionKey == "" {
		return fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is required in production")
	}
	if _, err := c.EncryptionKey(); err != nil {
		return err
	}

	if c.CarrierCacheTTL < 0 {
		return fmt.Errorf("CARRIER_CACHE_TTL must not be negative")
	}

	return nil
}
