package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"careers-relay/internal/attachment"
	"careers-relay/internal/logger"

	"github.com/spf13/viper"
)

// Transports the careers form can submit through.
const (
	TransportRelay  = "relay"
	TransportForms  = "forms"
	TransportNative = "native"
)

// ClientConfig configures the careers form client.
type ClientConfig struct {
	Transport     string
	RelayURL      string
	FormsEndpoint string
	FormsSubject  string
	SiteURL       string
	FormName      string
	SuccessTarget string
	RequireFile   bool
	Timeout       time.Duration
	Upload        UploadConfig
	Log           logger.Config
}

// UploadConfig is the file policy the form enforces before submitting.
type UploadConfig struct {
	AllowedTypes []string
	MaxBytes     int64
}

// Rules converts the upload policy for the validator.
func (u UploadConfig) Rules() attachment.Rules {
	return attachment.Rules{AllowedTypes: u.AllowedTypes, MaxBytes: u.MaxBytes}
}

// LoadClient reads the form client configuration. The relay does no file checks, so
// the upload policy lives here only.
func LoadClient() (*ClientConfig, error) {
	loadEnvFile()
	return loadClient(newClientViper())
}

func newClientViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("client.transport", TransportRelay)
	v.SetDefault("client.relay_url", "http://localhost:8080/api/submit-application")
	v.SetDefault("client.forms_subject", "New Job Application — LawnSolutions")
	v.SetDefault("client.site_url", "http://localhost:8888")
	v.SetDefault("client.form_name", "job-application")
	v.SetDefault("client.success_target", "/careers#thanks")
	v.SetDefault("client.require_file", false)
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("upload.allowed_types", attachment.TypePDF)
	v.SetDefault("upload.max_bytes", 3<<20)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", true)
	return v
}

func loadClient(v *viper.Viper) (*ClientConfig, error) {
	timeout, err := time.ParseDuration(v.GetString("client.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid client.timeout: %w", err)
	}
	cfg := &ClientConfig{
		Transport:     strings.ToLower(v.GetString("client.transport")),
		RelayURL:      v.GetString("client.relay_url"),
		FormsEndpoint: v.GetString("client.forms_endpoint"),
		FormsSubject:  v.GetString("client.forms_subject"),
		SiteURL:       strings.TrimRight(v.GetString("client.site_url"), "/"),
		FormName:      v.GetString("client.form_name"),
		SuccessTarget: v.GetString("client.success_target"),
		RequireFile:   v.GetBool("client.require_file"),
		Timeout:       timeout,
		Upload: UploadConfig{
			AllowedTypes: parseList(v.GetString("upload.allowed_types")),
			MaxBytes:     v.GetInt64("upload.max_bytes"),
		},
		Log: logger.Config{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) validate() error {
	switch c.Transport {
	case TransportRelay:
		if c.RelayURL == "" {
			return errors.New("client.relay_url is not set")
		}
	case TransportForms:
		if c.FormsEndpoint == "" {
			return errors.New("client.forms_endpoint is not set")
		}
	case TransportNative:
		if c.SiteURL == "" || c.FormName == "" {
			return errors.New("native transport needs client.site_url and client.form_name")
		}
	default:
		return fmt.Errorf("unknown client.transport %q", c.Transport)
	}
	if c.Upload.MaxBytes <= 0 || len(c.Upload.AllowedTypes) == 0 {
		return errors.New("upload policy needs allowed types and a positive max_bytes")
	}
	return nil
}
