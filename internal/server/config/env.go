package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv overrides cfg with the deployment environment variables.
// Unparseable numeric or boolean values are ignored.
func applyEnv(cfg *Config) {
	envOverride(&cfg.Environment, "POSTFACTO_ENV")
	if port := os.Getenv("PORT"); port != "" {
		cfg.EndpointAddrHTTP = ":" + port
	}
	envOverride(&cfg.EndpointAddrGRPC, "POSTFACTO_GRPC_ADDR")
	envOverride(&cfg.PublicURL, "POSTFACTO_PUBLIC_URL")
	envOverride(&cfg.DatabaseDSN, "DATABASE_URL")
	envOverride(&cfg.SecretKey, "POSTFACTO_SECRET_KEY")
	if origins := os.Getenv("POSTFACTO_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
	envOverrideBool(&cfg.Instrumentation, "POSTFACTO_INSTRUMENTATION")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFile, "LOG_FILE")
	envOverride(&cfg.IdentityHostedDomain, "GOOGLE_OAUTH_HOSTED_DOMAIN")
	envOverrideBool(&cfg.IdentityMock, "USE_MOCK_GOOGLE")
	envOverrideBool(&cfg.ArchiveEmails, "ARCHIVE_EMAILS")
	envOverride(&cfg.SMTPHost, "SMTP_HOST")
	envOverrideInt(&cfg.SMTPPort, "SMTP_PORT")
	envOverride(&cfg.SMTPUser, "SMTP_USER")
	envOverride(&cfg.SMTPPassword, "SMTP_PASSWORD")
	envOverride(&cfg.MailFrom, "FROM_ADDRESS")
	envOverride(&cfg.S3Bucket, "S3_BUCKET")
	envOverride(&cfg.S3RootUser, "S3_ACCESS_KEY")
	envOverride(&cfg.S3RootPassword, "S3_SECRET_KEY")
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
