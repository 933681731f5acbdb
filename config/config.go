package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Audio output configuration
	Audio AudioConfig `mapstructure:"audio"`

	// Engine configuration
	Engine EngineConfig `mapstructure:"engine"`

	// Decoder configuration
	Decoder DecoderConfig `mapstructure:"decoder"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// AudioConfig holds sound card configuration
type AudioConfig struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Buffer     time.Duration `mapstructure:"buffer"`
	Volume     float64       `mapstructure:"volume"`
}

// EngineConfig holds deck and polling configuration
type EngineConfig struct {
	Decks        int           `mapstructure:"decks"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CacheSize    int           `mapstructure:"cache_size"`
	NudgeStep    float64       `mapstructure:"nudge_step"`
}

// DecoderConfig holds the ffmpeg fallback configuration
type DecoderConfig struct {
	FFmpeg     string `mapstructure:"ffmpeg"`
	SampleRate int    `mapstructure:"sample_rate"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.buffer", "50ms")
	v.SetDefault("audio.volume", 1.0)
	v.SetDefault("engine.decks", 2)
	v.SetDefault("engine.poll_interval", "300ms")
	v.SetDefault("engine.cache_size", 8)
	v.SetDefault("engine.nudge_step", 0.05)
	v.SetDefault("decoder.ffmpeg", "ffmpeg")
	v.SetDefault("decoder.sample_rate", 44100)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig loads configuration from file and environment variables.
// An empty file searches the default locations for config.yaml.
func LoadConfig(file string) (*Config, error) {
	return Load(viper.GetViper(), file)
}

// Load reads configuration through v.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	// Read config file
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.djmix")
		v.AddConfigPath("/etc/djmix")
	}

	// Allow environment variables
	v.SetEnvPrefix("DJMIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Info("Using config file", slog.String("file", v.ConfigFileUsed()))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return &ConfigError{Field: "audio.sample_rate", Message: "sample rate must be between 8000 and 192000"}
	}
	if c.Audio.Buffer <= 0 {
		return &ConfigError{Field: "audio.buffer", Message: "buffer must be positive"}
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return &ConfigError{Field: "audio.volume", Message: "volume must be between 0 and 1"}
	}
	if c.Engine.Decks < 1 {
		return &ConfigError{Field: "engine.decks", Message: "at least one deck is required"}
	}
	if c.Engine.PollInterval <= 0 {
		return &ConfigError{Field: "engine.poll_interval", Message: "poll interval must be positive"}
	}
	if c.Engine.CacheSize < 0 {
		return &ConfigError{Field: "engine.cache_size", Message: "cache size cannot be negative"}
	}
	if c.Engine.NudgeStep <= 0 || c.Engine.NudgeStep > 1 {
		return &ConfigError{Field: "engine.nudge_step", Message: "nudge step must be in (0, 1]"}
	}
	if c.Decoder.FFmpeg == "" {
		return &ConfigError{Field: "decoder.ffmpeg", Message: "ffmpeg executable is required"}
	}
	if c.Decoder.SampleRate < 8000 || c.Decoder.SampleRate > 192000 {
		return &ConfigError{Field: "decoder.sample_rate", Message: "sample rate must be between 8000 and 192000"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
