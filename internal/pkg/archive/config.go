package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreditGate/internal/pkg/env"
)

const DefaultSchedule = "10 0 * * *"

// Config holds ledger archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Schedule        string
	Enabled         bool
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("ARCHIVE_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("ARCHIVE_S3_BUCKET", ""),
		EndpointURL:     env.GetEnv("ARCHIVE_S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("ARCHIVE_S3_PREFIX", "ledger"),
		Schedule:        env.GetEnv("ARCHIVE_SCHEDULE", DefaultSchedule),
		Enabled:         env.GetEnvBool("ARCHIVE_S3_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("ARCHIVE_S3_ACCESS_KEY_ID is required when the ledger archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("ARCHIVE_S3_SECRET_ACCESS_KEY is required when the ledger archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("ARCHIVE_S3_BUCKET is required when the ledger archive is enabled")
		}
	}

	return config, nil
}

// ObjectKey returns the key for one UTC day: <prefix>/YYYY/MM/DD.jsonl
func (c *Config) ObjectKey(day time.Time) string {
	day = day.UTC()
	prefix := c.Prefix
	if prefix == "" {
		prefix = "ledger"
	}
	return fmt.Sprintf("%s/%04d/%02d/%02d.jsonl", prefix, day.Year(), int(day.Month()), day.Day())
}
