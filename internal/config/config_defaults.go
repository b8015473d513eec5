package config

import (
	_ "embed"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed dualdoc.default.yaml
var defaultYAML []byte

var defaults Config

func init() {
	cfg, err := newDefault()
	if err != nil {
		panic("failed to parse default config: " + err.Error())
	}
	defaults = *cfg
}

func newDefault() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultYAML, cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a copy of the default configuration.
func Default() *Config {
	cfg := defaults
	cfg.Watch.Patterns = append([]string(nil), defaults.Watch.Patterns...)
	cfg.Sanitize.ExtraLinkProtocols = append([]string(nil), defaults.Sanitize.ExtraLinkProtocols...)
	return &cfg
}
