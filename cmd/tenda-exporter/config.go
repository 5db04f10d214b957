package main

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/gather"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tenda"
)

const passwordEnv = "TENDA_PASSWORD"

// Config is the resolved runtime configuration. Values come from the defaults,
// then the TOML file, then TENDA_PASSWORD, then explicitly set flags.
type Config struct {
	Host     string `validate:"required"`
	Password string `validate:"required"`

	Listen   string        `validate:"required,hostname_port"`
	Interval time.Duration `validate:"min=1s"`

	Timeout               time.Duration `validate:"min=1s"`
	DialTimeout           time.Duration `validate:"min=100ms"`
	ResponseHeaderTimeout time.Duration `validate:"min=100ms"`
	DeviceSource          string        `validate:"oneof=online-list qos"`

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// fileConfig mirrors Config as it appears in the TOML file; durations are
// written as strings such as "30s".
type fileConfig struct {
	Host                  string `toml:"host"`
	Password              string `toml:"password"`
	Listen                string `toml:"listen"`
	Interval              string `toml:"interval"`
	Timeout               string `toml:"timeout"`
	DialTimeout           string `toml:"dial_timeout"`
	ResponseHeaderTimeout string `toml:"response_header_timeout"`
	DeviceSource          string `toml:"device_source"`
	LogLevel              string `toml:"log_level"`
	LogFormat             string `toml:"log_format"`
}

func defaultConfig() Config {
	return Config{
		Listen:                ":9412",
		Interval:              30 * time.Second,
		Timeout:               15 * time.Second,
		DialTimeout:           5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		DeviceSource:          tenda.SourceOnlineList.String(),
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// GatherOptions translates the transport settings for the router client.
func (c Config) GatherOptions() ([]gather.Option, error) {
	source, err := tenda.ParseDeviceSource(c.DeviceSource)
	if err != nil {
		return nil, err
	}
	return []gather.Option{
		gather.WithTimeout(c.Timeout),
		gather.WithDialTimeout(c.DialTimeout),
		gather.WithResponseHeaderTimeout(c.ResponseHeaderTimeout),
		gather.WithDeviceSource(source),
	}, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}

	strs := []struct {
		value  string
		target *string
	}{
		{fc.Host, &cfg.Host},
		{fc.Password, &cfg.Password},
		{fc.Listen, &cfg.Listen},
		{fc.DeviceSource, &cfg.DeviceSource},
		{fc.LogLevel, &cfg.LogLevel},
		{fc.LogFormat, &cfg.LogFormat},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(s.value); v != "" {
			*s.target = v
		}
	}

	durations := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"interval", fc.Interval, &cfg.Interval},
		{"timeout", fc.Timeout, &cfg.Timeout},
		{"dial_timeout", fc.DialTimeout, &cfg.DialTimeout},
		{"response_header_timeout", fc.ResponseHeaderTimeout, &cfg.ResponseHeaderTimeout},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.value) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return errors.Wrapf(err, "parse %s", d.name)
		}
		*d.target = parsed
	}

	return nil
}

// options holds the raw flag values shared by all commands.
type options struct {
	configPath string
	flags      Config
}

func (o *options) bindPersistentFlags(cmd *cobra.Command) {
	def := defaultConfig()
	flags := cmd.PersistentFlags()

	flags.StringVar(&o.configPath, "config", "", "path to a TOML configuration file")
	flags.StringVar(&o.flags.Host, "host", "", "router address, e.g. 192.168.0.1")
	flags.StringVar(&o.flags.Password, "password", "", "router password (prefer "+passwordEnv+")")
	flags.StringVar(&o.flags.DeviceSource, "device-source", def.DeviceSource, "client list API: online-list or qos")
	flags.DurationVar(&o.flags.Timeout, "timeout", def.Timeout, "overall timeout of a router request")
	flags.DurationVar(&o.flags.DialTimeout, "dial-timeout", def.DialTimeout, "timeout for connecting to the router")
	flags.DurationVar(&o.flags.ResponseHeaderTimeout, "response-header-timeout", def.ResponseHeaderTimeout, "timeout waiting for the router's response")
	flags.StringVar(&o.flags.LogLevel, "log-level", def.LogLevel, "trace, debug, info, warn or error")
	flags.StringVar(&o.flags.LogFormat, "log-format", def.LogFormat, "text or json")
}

func (o *options) bindServeFlags(cmd *cobra.Command) {
	def := defaultConfig()
	flags := cmd.Flags()

	flags.StringVar(&o.flags.Listen, "listen", def.Listen, "address to serve metrics on")
	flags.DurationVar(&o.flags.Interval, "interval", def.Interval, "polling interval")
}

// load resolves the configuration for cmd and validates it.
func (o *options) load(cmd *cobra.Command) (Config, error) {
	cfg := defaultConfig()

	if o.configPath != "" {
		if err := loadFile(o.configPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	if password, ok := os.LookupEnv(passwordEnv); ok && password != "" {
		cfg.Password = password
	}

	changed := cmd.Flags().Changed
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"host", func() { cfg.Host = o.flags.Host }},
		{"password", func() { cfg.Password = o.flags.Password }},
		{"device-source", func() { cfg.DeviceSource = o.flags.DeviceSource }},
		{"timeout", func() { cfg.Timeout = o.flags.Timeout }},
		{"dial-timeout", func() { cfg.DialTimeout = o.flags.DialTimeout }},
		{"response-header-timeout", func() { cfg.ResponseHeaderTimeout = o.flags.ResponseHeaderTimeout }},
		{"log-level", func() { cfg.LogLevel = o.flags.LogLevel }},
		{"log-format", func() { cfg.LogFormat = o.flags.LogFormat }},
		{"listen", func() { cfg.Listen = o.flags.Listen }},
		{"interval", func() { cfg.Interval = o.flags.Interval }},
	}
	for _, override := range overrides {
		if changed(override.flag) {
			override.apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configureLogging(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "parse log level")
	}
	logrus.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
