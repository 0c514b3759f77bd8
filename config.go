package mainloop

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"
)

// Config is the file based configuration of a loop. See [Config.Options].
type Config struct {
	// Name is attached to log messages and metrics.
	Name string `yaml:"name" json:"name"`

	// LogLevel is one of disabled (the default), emerg, alert, crit, err,
	// warning, notice, info, debug or trace.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogRateLimits maps a window (e.g. "1s") to the maximum number of error
	// level messages per category, within that window.
	LogRateLimits map[string]int `yaml:"log_rate_limits" json:"log_rate_limits"`

	// Metrics enables OpenTelemetry metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`
}

// LoadConfig loads a Config from a file, detecting the format by extension.
// Supported extensions: .yaml, .yml, .json
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return ParseConfig(data, "yaml")
	case ".json":
		return ParseConfig(data, "json")
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// ParseConfig parses data, in the given format ("yaml" or "json").
func ParseConfig(data []byte, format string) (Config, error) {
	var cfg Config
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", format)
	}
	if _, err := cfg.level(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.rateLimits(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options converts the config to loop options. Logs are written to
// logOutput, as JSON, see [NewJSONLogger]. If metrics are enabled and
// provider is nil, the global otel meter provider is used.
func (c Config) Options(logOutput io.Writer, provider metric.MeterProvider) ([]LoopOption, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	rates, err := c.rateLimits()
	if err != nil {
		return nil, err
	}

	var opts []LoopOption
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	if level.Enabled() && logOutput != nil {
		opts = append(opts, WithLogger(NewJSONLogger(logOutput, level)))
	}
	if rates != nil {
		opts = append(opts, WithLogRateLimits(rates))
	}
	if c.Metrics {
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		opts = append(opts, WithMeterProvider(provider))
	}
	return opts, nil
}

var logLevels = map[string]logiface.Level{
	"":         logiface.LevelDisabled,
	"disabled": logiface.LevelDisabled,
	"emerg":    logiface.LevelEmergency,
	"alert":    logiface.LevelAlert,
	"crit":     logiface.LevelCritical,
	"err":      logiface.LevelError,
	"error":    logiface.LevelError,
	"warning":  logiface.LevelWarning,
	"warn":     logiface.LevelWarning,
	"notice":   logiface.LevelNotice,
	"info":     logiface.LevelInformational,
	"debug":    logiface.LevelDebug,
	"trace":    logiface.LevelTrace,
}

func (c Config) level() (logiface.Level, error) {
	level, ok := logLevels[strings.ToLower(c.LogLevel)]
	if !ok {
		return logiface.LevelDisabled, fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	return level, nil
}

// rateLimits returns nil if unset, or an empty map to disable limiting.
func (c Config) rateLimits() (map[time.Duration]int, error) {
	if c.LogRateLimits == nil {
		return nil, nil
	}
	rates := make(map[time.Duration]int, len(c.LogRateLimits))
	for k, v := range c.LogRateLimits {
		d, err := time.ParseDuration(k)
		if err != nil {
			return nil, fmt.Errorf("invalid log rate limit window %q: %w", k, err)
		}
		if d <= 0 || v <= 0 {
			return nil, fmt.Errorf("invalid log rate limit: %s: %d", k, v)
		}
		rates[d] = v
	}
	return rates, nil
}
