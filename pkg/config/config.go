// Package config loads curate settings from flags, CURATE_* environment
// variables and an optional config.yaml.
package config

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/curate/pkg/convert"
	"github.com/jingkaihe/curate/pkg/manifest"
	"github.com/jingkaihe/curate/pkg/upstream"
)

// EnvPrefix prefixes every environment variable curate reads.
const EnvPrefix = "CURATE"

// Config is the resolved configuration.
type Config struct {
	ManifestPath string               `mapstructure:"manifest_path"`
	GitHubToken  string               `mapstructure:"github_token"`
	Concurrency  int                  `mapstructure:"concurrency"`
	RateLimit    float64              `mapstructure:"rate_limit"`
	Retry        upstream.RetryConfig `mapstructure:"retry"`
	Agent        AgentConfig          `mapstructure:"agent"`
	Body         BodyConfig           `mapstructure:"body"`
	LogLevel     string               `mapstructure:"log_level"`
	LogFormat    string               `mapstructure:"log_format"`
}

// AgentConfig holds agent conversion defaults.
type AgentConfig struct {
	DefaultMode string `mapstructure:"default_mode"`
}

// BodyConfig holds body rewriting settings. Prefixes are namespace
// replacements applied on top of the built-in ones.
type BodyConfig struct {
	Prefixes map[string]string `mapstructure:"prefixes"`
}

// New returns a viper instance wired for curate: env prefix, key replacer,
// config search paths and defaults.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.curate")
	v.AddConfigPath(".")

	SetDefaults(v)
	_ = v.BindEnv("github_token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("manifest_path", manifest.DefaultPath)
	v.SetDefault("github_token", "")
	v.SetDefault("concurrency", upstream.DefaultConcurrency)
	v.SetDefault("rate_limit", upstream.DefaultRateLimit)
	v.SetDefault("retry.attempts", upstream.DefaultRetryConfig.Attempts)
	v.SetDefault("retry.initial_delay", upstream.DefaultRetryConfig.InitialDelay)
	v.SetDefault("retry.max_delay", upstream.DefaultRetryConfig.MaxDelay)
	v.SetDefault("retry.backoff_type", upstream.DefaultRetryConfig.BackoffType)
	v.SetDefault("agent.default_mode", convert.ModeSubagent)
	v.SetDefault("body.prefixes", map[string]string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// ReadConfigFile loads config.yaml if one exists on the search path.
func ReadConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config decoder")
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ManifestPath, validation.Required),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "warning", "error")),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Retry,
		validation.Field(&c.Retry.Attempts, validation.Required, validation.Min(2)),
		validation.Field(&c.Retry.InitialDelay, validation.Min(0)),
		validation.Field(&c.Retry.MaxDelay, validation.Min(c.Retry.InitialDelay)),
		validation.Field(&c.Retry.BackoffType, validation.In("exponential", "fixed")),
	); err != nil {
		return errors.Wrap(err, "retry")
	}

	if err := validation.ValidateStruct(&c.Agent,
		validation.Field(&c.Agent.DefaultMode, validation.In(convert.ModePrimary, convert.ModeSubagent)),
	); err != nil {
		return errors.Wrap(err, "agent")
	}

	for from, to := range c.Body.Prefixes {
		if from == "" {
			return errors.New("body: prefixes must not contain an empty key")
		}
		if to != from && strings.Contains(to, from) {
			return errors.Errorf("body: prefix %q is rewritten to %q which contains it again", from, to)
		}
	}
	return nil
}

// ConverterOptions returns the converter options implied by the config.
func (c *Config) ConverterOptions() []convert.Option {
	return []convert.Option{convert.WithPrefixReplacements(c.Body.Prefixes)}
}

// CheckerOptions returns the change detection options implied by the config.
func (c *Config) CheckerOptions() []upstream.Option {
	return []upstream.Option{
		upstream.WithRetryConfig(c.Retry),
		upstream.WithConcurrency(c.Concurrency),
	}
}
