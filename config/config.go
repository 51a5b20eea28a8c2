package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. It is loaded once at startup and
// passed into constructors; nothing reads the environment mid-request.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Image     ImageConfig     `mapstructure:"image"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	DataDir   string          `mapstructure:"data_dir"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type AuthConfig struct {
	Secret    string        `mapstructure:"secret"`
	Issuer    string        `mapstructure:"issuer"`
	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

// ImageConfig holds the transform defaults.
type ImageConfig struct {
	DefaultQuality int      `mapstructure:"default_quality"`
	MaxDimension   int      `mapstructure:"max_dimension"`
	DefaultFormat  string   `mapstructure:"default_format"`
	AllowedFormats []string `mapstructure:"allowed_formats"`
	Workers        int      `mapstructure:"workers"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, redis or pebble
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	OpTimeout     time.Duration `mapstructure:"op_timeout"`
	SingleFlight  bool          `mapstructure:"singleflight"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
	RedisURL      string        `mapstructure:"redis_url"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // s3, gcs, sftp or local
	Bucket  string      `mapstructure:"bucket"`
	S3      S3Config    `mapstructure:"s3"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	SFTP    SFTPConfig  `mapstructure:"sftp"`
	Local   LocalConfig `mapstructure:"local"`
}

type S3Config struct {
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type SFTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	PrivateKey string `mapstructure:"private_key"`
	Root       string `mapstructure:"root"`
}

type LocalConfig struct {
	Root string `mapstructure:"root"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.clock_skew", time.Minute)

	v.SetDefault("image.default_quality", 85)
	v.SetDefault("image.max_dimension", 2000)
	v.SetDefault("image.default_format", "jpeg")
	v.SetDefault("image.allowed_formats", []string{"jpeg", "png", "webp"})
	v.SetDefault("image.workers", runtime.NumCPU())

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 60*time.Second)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.op_timeout", 500*time.Millisecond)
	v.SetDefault("cache.singleflight", false)
	v.SetDefault("cache.purge_interval", 10*time.Minute)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.key_prefix", "")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.gcs.credentials_file", "")
	v.SetDefault("storage.sftp.host", "")
	v.SetDefault("storage.sftp.port", "22")
	v.SetDefault("storage.sftp.user", "")
	v.SetDefault("storage.sftp.password", "")
	v.SetDefault("storage.sftp.private_key", "")
	v.SetDefault("storage.sftp.root", "/")
	v.SetDefault("storage.local.root", GetLocalStorageDir())

	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.console", true)

	v.SetDefault("data_dir", GetDataDir())
}

// Load reads configuration from defaults, an optional TOML file and
// IMAGEGEN_* environment variables, in increasing priority. An empty path
// looks for imagegen.toml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMAGEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("imagegen")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Image.DefaultFormat = strings.ToLower(strings.TrimSpace(c.Image.DefaultFormat))
	formats := make([]string, 0, len(c.Image.AllowedFormats))
	for _, f := range c.Image.AllowedFormats {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			formats = append(formats, f)
		}
	}
	c.Image.AllowedFormats = formats
	c.Cache.Backend = strings.ToLower(c.Cache.Backend)
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Image.DefaultQuality < 1 || c.Image.DefaultQuality > 100 {
		return fmt.Errorf("image.default_quality must be within [1,100], got %d", c.Image.DefaultQuality)
	}
	if c.Image.MaxDimension <= 0 {
		return fmt.Errorf("image.max_dimension must be positive, got %d", c.Image.MaxDimension)
	}
	if len(c.Image.AllowedFormats) == 0 {
		return errors.New("image.allowed_formats must not be empty")
	}
	if c.Image.Workers <= 0 {
		return fmt.Errorf("image.workers must be positive, got %d", c.Image.Workers)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "pebble":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	switch c.Storage.Backend {
	case "s3", "gcs", "sftp", "local":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rate_limit.requests must not be negative, got %d", c.RateLimit.Requests)
	}
	return nil
}
