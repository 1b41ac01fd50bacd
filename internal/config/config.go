package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	MailerSend MailerSendConfig `mapstructure:"mailersend"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Store      StoreConfig      `mapstructure:"store"`
	Trigger    TriggerConfig    `mapstructure:"trigger"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// IntakeKeyHash is the bcrypt hash of the bearer key required on
	// /api/v1/emails. Empty leaves the intake open.
	IntakeKeyHash string `mapstructure:"intake_key_hash"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig holds Redis connection configuration for the stream trigger.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// MailerSendConfig holds provider API configuration.
type MailerSendConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HealthCheck bool          `mapstructure:"health_check"`
}

// DefaultsConfig holds values applied to requests that omit them.
type DefaultsConfig struct {
	FromEmail    string `mapstructure:"from_email"`
	FromName     string `mapstructure:"from_name"`
	ReplyToEmail string `mapstructure:"reply_to_email"`
	ReplyToName  string `mapstructure:"reply_to_name"`
	TemplateID   string `mapstructure:"template_id"`
}

// WebhookConfig holds the delivery callback endpoint configuration.
type WebhookConfig struct {
	Path            string `mapstructure:"path"`
	SigningSecret   string `mapstructure:"signing_secret"`
	SignatureHeader string `mapstructure:"signature_header"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// StoreConfig names the record collection.
type StoreConfig struct {
	Collection string `mapstructure:"collection"`
}

// Trigger modes.
const (
	TriggerNotify = "notify"
	TriggerStream = "stream"
	TriggerSQS    = "sqs"
	TriggerNone   = "none"
)

// DefaultChannel is the notify channel used by the bundled migrations.
const DefaultChannel = "email_requests_created"

// TriggerConfig selects and configures the record-created event source.
type TriggerConfig struct {
	Mode         string        `mapstructure:"mode"`
	Channel      string        `mapstructure:"channel"`
	Stream       string        `mapstructure:"stream"`
	Group        string        `mapstructure:"group"`
	Consumer     string        `mapstructure:"consumer"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	SQSQueueURL  string        `mapstructure:"sqs_queue_url"`
	SQSRegion    string        `mapstructure:"sqs_region"`
	SQSEndpoint  string        `mapstructure:"sqs_endpoint"`
	SQSWaitTime  int32         `mapstructure:"sqs_wait_time"`

	// InstallTrigger makes notify mode (re)install the insert trigger on
	// store.collection for trigger.channel at startup. Turn it off when the
	// bridge's database role cannot run DDL.
	InstallTrigger bool `mapstructure:"install_trigger"`
}

// ArchiveConfig configures the webhook body archive.
type ArchiveConfig struct {
	Type       string `mapstructure:"type"`
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix MAILBRIDGE_ override file values.
// For example, MAILBRIDGE_MAILERSEND_API_KEY overrides mailersend.api_key.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MAILBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// config.yaml omits it. The webhook path has no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
	v.SetDefault("api.shutdown_timeout", 30*time.Second)
	v.SetDefault("api.intake_key_hash", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	v.SetDefault("mailersend.api_key", "")
	v.SetDefault("mailersend.endpoint", "https://api.mailersend.com")
	v.SetDefault("mailersend.timeout", 30*time.Second)
	v.SetDefault("mailersend.health_check", false)

	v.SetDefault("defaults.from_email", "")
	v.SetDefault("defaults.from_name", "")
	v.SetDefault("defaults.reply_to_email", "")
	v.SetDefault("defaults.reply_to_name", "")
	v.SetDefault("defaults.template_id", "")

	v.SetDefault("webhook.path", "")
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.signature_header", "Mailersend-Signature")
	v.SetDefault("webhook.max_body_bytes", 1<<20)

	v.SetDefault("store.collection", "email_requests")

	v.SetDefault("trigger.mode", TriggerNotify)
	v.SetDefault("trigger.channel", DefaultChannel)
	v.SetDefault("trigger.install_trigger", true)
	v.SetDefault("trigger.stream", "mailbridge:created")
	v.SetDefault("trigger.group", "mailbridge")
	v.SetDefault("trigger.consumer", "")
	v.SetDefault("trigger.block_timeout", 5*time.Second)
	v.SetDefault("trigger.sqs_queue_url", "")
	v.SetDefault("trigger.sqs_region", "")
	v.SetDefault("trigger.sqs_endpoint", "")
	v.SetDefault("trigger.sqs_wait_time", 20)

	v.SetDefault("archive.type", "none")
	v.SetDefault("archive.path", "")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_prefix", "")
	v.SetDefault("archive.s3_endpoint", "")
	v.SetDefault("archive.s3_region", "")
}

// Validate checks settings the bridge cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.MailerSend.APIKey == "" {
		errs = append(errs, errors.New("mailersend.api_key is required"))
	}
	if c.Webhook.Path == "" {
		errs = append(errs, errors.New("webhook.path is required"))
	} else if !strings.HasPrefix(c.Webhook.Path, "/") {
		errs = append(errs, fmt.Errorf("webhook.path %q must start with /", c.Webhook.Path))
	}
	if c.Webhook.SignatureHeader == "" {
		errs = append(errs, errors.New("webhook.signature_header is required"))
	}

	switch c.Trigger.Mode {
	case TriggerNotify:
		if c.Trigger.Channel == "" {
			errs = append(errs, errors.New("trigger.channel is required for notify mode"))
		}
	case TriggerStream:
		if c.Trigger.Stream == "" || c.Trigger.Group == "" {
			errs = append(errs, errors.New("trigger.stream and trigger.group are required for stream mode"))
		}
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for stream mode"))
		}
	case TriggerSQS:
		if c.Trigger.SQSQueueURL == "" {
			errs = append(errs, errors.New("trigger.sqs_queue_url is required for sqs mode"))
		}
	case TriggerNone:
	default:
		errs = append(errs, fmt.Errorf("trigger.mode %q is not one of notify, stream, sqs, none", c.Trigger.Mode))
	}

	switch c.Archive.Type {
	case "", "none":
	case "local":
		if c.Archive.Path == "" {
			errs = append(errs, errors.New("archive.path is required for local archive"))
		}
	case "s3":
		if c.Archive.S3Bucket == "" {
			errs = append(errs, errors.New("archive.s3_bucket is required for s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.type %q is not one of local, s3, none", c.Archive.Type))
	}

	return errors.Join(errs...)
}
