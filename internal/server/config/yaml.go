package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of the YAML config file. Pointer fields
// distinguish "absent" from zero values so that the file only overrides what
// it mentions. Durations are written as Go duration strings ("15m", "720h").
type fileConfig struct {
	Environment      *string `yaml:"environment"`
	EndpointAddrHTTP *string `yaml:"http_addr"`
	EndpointAddrGRPC *string `yaml:"grpc_addr"`
	PublicURL        *string `yaml:"public_url"`

	Database struct {
		DSN         *string `yaml:"dsn"`
		AutoMigrate *bool   `yaml:"auto_migrate"`
	} `yaml:"database"`

	Auth struct {
		SecretKey         *string  `yaml:"secret_key"`
		UserTokenValidity *string  `yaml:"user_token_validity"`
		MagicLinkValidity *string  `yaml:"magic_link_validity"`
		SessionGrantTTL   *string  `yaml:"session_grant_ttl"`
		CookieSecure      *bool    `yaml:"cookie_secure"`
		CORSOrigins       []string `yaml:"cors_origins"`
	} `yaml:"auth"`

	Log struct {
		Instrumentation *bool   `yaml:"instrumentation"`
		Level           *string `yaml:"level"`
		File            *string `yaml:"file"`
		MaxSizeMB       *int    `yaml:"max_size_mb"`
		MaxBackups      *int    `yaml:"max_backups"`
		MaxAgeDays      *int    `yaml:"max_age_days"`
	} `yaml:"log"`

	Identity struct {
		URL          *string `yaml:"url"`
		HostedDomain *string `yaml:"hosted_domain"`
		Mock         *bool   `yaml:"mock"`
	} `yaml:"identity"`

	Mail struct {
		ArchiveEmails *bool   `yaml:"archive_emails"`
		Host          *string `yaml:"smtp_host"`
		Port          *int    `yaml:"smtp_port"`
		User          *string `yaml:"smtp_user"`
		Password      *string `yaml:"smtp_password"`
		From          *string `yaml:"from"`
	} `yaml:"mail"`

	S3 struct {
		RootUser     *string `yaml:"root_user"`
		RootPassword *string `yaml:"root_password"`
		Bucket       *string `yaml:"bucket"`
		Region       *string `yaml:"region"`
		BaseEndpoint *string `yaml:"base_endpoint"`
	} `yaml:"s3"`
}

// parseYAML overlays the values present in the YAML file at path onto cfg.
func parseYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}

	setString(&cfg.Environment, f.Environment)
	setString(&cfg.EndpointAddrHTTP, f.EndpointAddrHTTP)
	setString(&cfg.EndpointAddrGRPC, f.EndpointAddrGRPC)
	setString(&cfg.PublicURL, f.PublicURL)

	setString(&cfg.DatabaseDSN, f.Database.DSN)
	setBool(&cfg.AutoMigrate, f.Database.AutoMigrate)

	setString(&cfg.SecretKey, f.Auth.SecretKey)
	if err := setDuration(&cfg.UserTokenValidityDuration, f.Auth.UserTokenValidity); err != nil {
		return fmt.Errorf("auth.user_token_validity: %w", err)
	}
	if err := setDuration(&cfg.MagicLinkValidityDuration, f.Auth.MagicLinkValidity); err != nil {
		return fmt.Errorf("auth.magic_link_validity: %w", err)
	}
	if err := setDuration(&cfg.SessionGrantTTL, f.Auth.SessionGrantTTL); err != nil {
		return fmt.Errorf("auth.session_grant_ttl: %w", err)
	}
	setBool(&cfg.CookieSecure, f.Auth.CookieSecure)
	if f.Auth.CORSOrigins != nil {
		cfg.CORSOrigins = f.Auth.CORSOrigins
	}

	setBool(&cfg.Instrumentation, f.Log.Instrumentation)
	setString(&cfg.LogLevel, f.Log.Level)
	setString(&cfg.LogFile, f.Log.File)
	setInt(&cfg.LogMaxSizeMB, f.Log.MaxSizeMB)
	setInt(&cfg.LogMaxBackups, f.Log.MaxBackups)
	setInt(&cfg.LogMaxAgeDays, f.Log.MaxAgeDays)

	setString(&cfg.IdentityURL, f.Identity.URL)
	setString(&cfg.IdentityHostedDomain, f.Identity.HostedDomain)
	setBool(&cfg.IdentityMock, f.Identity.Mock)

	setBool(&cfg.ArchiveEmails, f.Mail.ArchiveEmails)
	setString(&cfg.SMTPHost, f.Mail.Host)
	setInt(&cfg.SMTPPort, f.Mail.Port)
	setString(&cfg.SMTPUser, f.Mail.User)
	setString(&cfg.SMTPPassword, f.Mail.Password)
	setString(&cfg.MailFrom, f.Mail.From)

	setString(&cfg.S3RootUser, f.S3.RootUser)
	setString(&cfg.S3RootPassword, f.S3.RootPassword)
	setString(&cfg.S3Bucket, f.S3.Bucket)
	setString(&cfg.S3Region, f.S3.Region)
	setString(&cfg.S3BaseEndpoint, f.S3.BaseEndpoint)

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
