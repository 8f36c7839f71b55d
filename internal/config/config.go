package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"careers-relay/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

// Mail providers.
const (
	ProviderResend = "resend"
	ProviderGraph  = "graph"
	ProviderSMTP   = "smtp"
)

// SMTP transport security.
const (
	SMTPStartTLS    = "starttls"
	SMTPImplicitTLS = "tls"
	SMTPPlain       = "none"
)

// Dispatch modes.
const (
	DispatchDirect = "direct"
	DispatchQueue  = "queue"
)

var ErrNoRecipients = errors.New("mail.to is not set")

type Config struct {
	Server   ServerConfig
	Mail     MailConfig
	Dispatch DispatchConfig
	Log      logger.Config
	Trace    TraceConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Paths          []string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MailConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	To       []string
	From     string

	// Microsoft Graph client credentials.
	TenantID     string
	ClientID     string
	ClientSecret string

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPSecurity string

	Timeout time.Duration
}

type DispatchConfig struct {
	Mode          string
	NATSURL       string
	MaxRetries    int
	RatePerSecond float64
	FetchWait     time.Duration
}

type TraceConfig struct {
	Enabled bool
	Service string
	Env     string
}

// Load reads the relay and worker configuration from .env and the environment.
func Load() (*Config, error) {
	loadEnvFile()
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.paths", "/api/submit-application,/.netlify/functions/submit-application")
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("server.max_body_bytes", 8<<20)
	v.SetDefault("mail.provider", ProviderResend)
	v.SetDefault("mail.base_url", "https://api.resend.com")
	v.SetDefault("mail.timeout", "20s")
	v.SetDefault("mail.smtp_security", SMTPStartTLS)
	v.SetDefault("dispatch.mode", DispatchDirect)
	v.SetDefault("dispatch.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("dispatch.max_retries", 3)
	v.SetDefault("dispatch.rate_per_second", 2.0)
	v.SetDefault("dispatch.fetch_wait", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.service", "careers-relay")

	// Legacy variable names of earlier deployments.
	bindAliases(v, "mail.api_key", "RESEND_API_KEY")
	bindAliases(v, "mail.to", "JOBS_TO_EMAIL")
	bindAliases(v, "mail.from", "JOBS_FROM_EMAIL", "SENDER_EMAIL")
	bindAliases(v, "mail.tenant_id", "TENANT_ID")
	bindAliases(v, "mail.client_id", "CLIENT_ID")
	bindAliases(v, "mail.client_secret", "CLIENT_SECRET")
	bindAliases(v, "server.port", "PORT")
	bindAliases(v, "dispatch.nats_url", "NATS_URL")
	bindAliases(v, "trace.env", "DD_ENV")
	return v
}

func bindAliases(v *viper.Viper, key string, aliases ...string) {
	names := append([]string{envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
	_ = v.BindEnv(append([]string{key}, names...)...)
}

func load(v *viper.Viper) (*Config, error) {
	mailTimeout, err := time.ParseDuration(v.GetString("mail.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid mail.timeout: %w", err)
	}
	fetchWait, err := time.ParseDuration(v.GetString("dispatch.fetch_wait"))
	if err != nil {
		return nil, fmt.Errorf("invalid dispatch.fetch_wait: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			Paths:          parseList(v.GetString("server.paths")),
			AllowedOrigins: parseList(v.GetString("server.allowed_origins")),
			MaxBodyBytes:   v.GetInt64("server.max_body_bytes"),
		},
		Mail: MailConfig{
			Provider:     strings.ToLower(v.GetString("mail.provider")),
			APIKey:       v.GetString("mail.api_key"),
			BaseURL:      strings.TrimRight(v.GetString("mail.base_url"), "/"),
			To:           parseList(v.GetString("mail.to")),
			From:         v.GetString("mail.from"),
			TenantID:     v.GetString("mail.tenant_id"),
			ClientID:     v.GetString("mail.client_id"),
			ClientSecret: v.GetString("mail.client_secret"),
			SMTPAddr:     v.GetString("mail.smtp_addr"),
			SMTPUsername: v.GetString("mail.smtp_username"),
			SMTPPassword: v.GetString("mail.smtp_password"),
			SMTPSecurity: strings.ToLower(v.GetString("mail.smtp_security")),
			Timeout:      mailTimeout,
		},
		Dispatch: DispatchConfig{
			Mode:          strings.ToLower(v.GetString("dispatch.mode")),
			NATSURL:       v.GetString("dispatch.nats_url"),
			MaxRetries:    v.GetInt("dispatch.max_retries"),
			RatePerSecond: v.GetFloat64("dispatch.rate_per_second"),
			FetchWait:     fetchWait,
		},
		Log: logger.Config{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Trace: TraceConfig{
			Enabled: v.GetBool("trace.enabled"),
			Service: v.GetString("trace.service"),
			Env:     v.GetString("trace.env"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Mail.To) == 0 {
		return ErrNoRecipients
	}
	if c.Mail.From == "" {
		return errors.New("mail.from is not set")
	}
	if len(c.Server.Paths) == 0 {
		return errors.New("server.paths must name at least one route")
	}
	switch c.Dispatch.Mode {
	case DispatchDirect, DispatchQueue:
	default:
		return fmt.Errorf("unknown dispatch.mode %q", c.Dispatch.Mode)
	}
	if c.Dispatch.MaxRetries < 1 {
		return errors.New("dispatch.max_retries must be at least 1")
	}
	return nil
}

// ValidateProvider checks the credentials of the configured mail provider. Only
// processes that send directly need them.
func (c *Config) ValidateProvider() error {
	m := c.Mail
	switch m.Provider {
	case ProviderResend:
		if m.APIKey == "" {
			return errors.New("mail.api_key (RESEND_API_KEY) is not set")
		}
	case ProviderGraph:
		if m.TenantID == "" || m.ClientID == "" || m.ClientSecret == "" {
			return errors.New("graph provider needs mail.tenant_id, mail.client_id and mail.client_secret")
		}
	case ProviderSMTP:
		if m.SMTPAddr == "" {
			return errors.New("mail.smtp_addr is not set")
		}
		switch m.SMTPSecurity {
		case "", SMTPStartTLS, SMTPImplicitTLS, SMTPPlain:
		default:
			return fmt.Errorf("unknown mail.smtp_security %q", m.SMTPSecurity)
		}
	default:
		return fmt.Errorf("unknown mail.provider %q", m.Provider)
	}
	return nil
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func loadEnvFile() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
}
