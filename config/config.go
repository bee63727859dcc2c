package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/hupe1980/spill"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SPILL"

// ByteSize is a size in bytes that decodes from "512KiB"-style strings.
type ByteSize int64

// String formats b with IEC units.
func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// MarshalYAML writes b in the form ParseByteSize reads.
func (b ByteSize) MarshalYAML() (any, error) { return b.String(), nil }

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return ByteSize(n), nil
}

// Config is the complete spill configuration.
type Config struct {
	// CacheRoot is the parent of every run's eviction directory.
	CacheRoot string `mapstructure:"cache_root" validate:"required" yaml:"cache_root"`

	// RunID names the eviction directory of this run.
	RunID string `mapstructure:"run_id" validate:"required,excludesall=/\\" yaml:"run_id"`

	Eviction EvictionConfig `mapstructure:"eviction" yaml:"eviction"`

	// Threshold is the smallest block size that is evicted. Zero derives
	// it from the memory ceiling.
	Threshold ByteSize `mapstructure:"threshold" validate:"gte=0" yaml:"threshold"`

	// MemoryCeiling bounds the memory the run may use. Zero uses the
	// process limit.
	MemoryCeiling ByteSize `mapstructure:"memory_ceiling" validate:"gte=0" yaml:"memory_ceiling"`

	WriteBuffer WriteBufferConfig `mapstructure:"write_buffer" yaml:"write_buffer"`

	// SoftCache bounds the soft cache. Zero uses a quarter of the ceiling.
	SoftCache ByteSize `mapstructure:"soft_cache" validate:"gte=0" yaml:"soft_cache"`

	// IOLimit caps eviction disk throughput in bytes per second. Zero is
	// unlimited.
	IOLimit ByteSize `mapstructure:"io_limit" validate:"gte=0" yaml:"io_limit"`

	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`

	WriteCacheOnRead bool `mapstructure:"write_cache_on_read" yaml:"write_cache_on_read"`
	EagerDeviceFree  bool `mapstructure:"eager_device_free" yaml:"eager_device_free"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Backing BackingConfig `mapstructure:"backing" yaml:"backing"`
}

// EvictionConfig names eviction files.
type EvictionConfig struct {
	Prefix      string `mapstructure:"prefix" validate:"required,excludesall=/\\" yaml:"prefix"`
	Extension   string `mapstructure:"extension" yaml:"extension"`
	Compression string `mapstructure:"compression" validate:"oneof=none lz4 zstd NONE LZ4 ZSTD" yaml:"compression"`
}

// WriteBufferConfig sizes the write-back buffer. Bytes takes precedence
// over Fraction.
type WriteBufferConfig struct {
	Bytes    ByteSize `mapstructure:"bytes" validate:"gte=0" yaml:"bytes"`
	Fraction float64  `mapstructure:"fraction" validate:"gt=0,lte=1" yaml:"fraction"`
	Policy   string   `mapstructure:"policy" validate:"oneof=fifo lru FIFO LRU" yaml:"policy"`
}

// CleanupConfig controls CleanupCacheDir.
type CleanupConfig struct {
	Async   bool `mapstructure:"async" yaml:"async"`
	Workers int  `mapstructure:"workers" validate:"gte=1" yaml:"workers"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"oneof=text json none" yaml:"format"`
}

// MetricsConfig enables the Prometheus endpoint of spillctl.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true" yaml:"address"`
}

// BackingConfig configures the stores behind backing paths.
type BackingConfig struct {
	// LocalRoot holds file:// paths and paths without a scheme.
	LocalRoot string `mapstructure:"local_root" yaml:"local_root"`

	// Format is the default format of new backing files.
	Format string `mapstructure:"format" validate:"oneof=binary csv jsonl" yaml:"format"`

	S3    *S3Config    `mapstructure:"s3" yaml:"s3,omitempty"`
	MinIO *MinIOConfig `mapstructure:"minio" yaml:"minio,omitempty"`
}

// S3Config serves s3:// paths.
type S3Config struct {
	Bucket   string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`
}

// MinIOConfig serves minio:// paths.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required,hostname_port" yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"-"`
	Secure    bool   `mapstructure:"secure" yaml:"secure"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		CacheRoot: filepath.Join(os.TempDir(), "spill"),
		RunID:     fmt.Sprintf("run-%d", os.Getpid()),
		Eviction: EvictionConfig{
			Prefix:      spill.DefaultEvictionPrefix,
			Extension:   spill.DefaultEvictionExtension,
			Compression: "lz4",
		},
		WriteBuffer: WriteBufferConfig{
			Fraction: spill.DefaultWriteBufferFraction,
			Policy:   "fifo",
		},
		Cleanup: CleanupConfig{Async: true, Workers: 4},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Address: ":9090"},
		Backing: BackingConfig{Format: "binary"},
	}
}

// Load reads path, if set, then the environment, on top of Default.
// A missing file is an error only when path is given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper knows about.
	bindKeys(v, "", reflect.TypeOf(Config{}))

	if path != "" {
		v.SetConfigFile(path)
	}
}

// bindKeys registers every leaf mapstructure key of t with v.
func bindKeys(v *viper.Viper, prefix string, t reflect.Type) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for i := range t.NumField() {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			bindKeys(v, key, ft)
			continue
		}
		_ = v.BindEnv(key)
	}
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// byteSizeDecodeHook converts strings and numbers to ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseByteSize(v)
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Options converts cfg into Manager options.
func (c *Config) Options() ([]spill.Option, error) {
	policy, err := spill.ParsePolicy(c.WriteBuffer.Policy)
	if err != nil {
		return nil, err
	}
	compression, err := spill.ParseCompression(c.Eviction.Compression)
	if err != nil {
		return nil, err
	}

	opts := []spill.Option{
		spill.WithCacheRoot(c.CacheRoot),
		spill.WithEvictionPrefix(c.Eviction.Prefix),
		spill.WithEvictionExtension(c.Eviction.Extension),
		spill.WithThreshold(int64(c.Threshold)),
		spill.WithMemoryCeiling(int64(c.MemoryCeiling)),
		spill.WithWriteBufferFraction(c.WriteBuffer.Fraction),
		spill.WithWriteBufferBytes(int64(c.WriteBuffer.Bytes)),
		spill.WithPolicy(policy),
		spill.WithCompression(compression),
		spill.WithSoftCacheBytes(int64(c.SoftCache)),
		spill.WithIOLimit(int64(c.IOLimit)),
		spill.WithAsyncCleanup(c.Cleanup.Async),
		spill.WithCleanupWorkers(c.Cleanup.Workers),
		spill.WithWriteCacheOnRead(c.WriteCacheOnRead),
		spill.WithEagerDeviceFree(c.EagerDeviceFree),
	}

	logger, err := c.Logging.Logger()
	if err != nil {
		return nil, err
	}
	return append(opts, spill.WithLogger(logger)), nil
}

// Logger builds the configured logger.
func (l LoggingConfig) Logger() (*spill.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	switch strings.ToLower(l.Format) {
	case "json":
		return spill.NewJSONLogger(level), nil
	case "none":
		return spill.NoopLogger(), nil
	default:
		return spill.NewTextLogger(level), nil
	}
}
