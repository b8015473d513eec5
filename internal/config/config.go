package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of dualdoc, read from dualdoc.yaml.
type Config struct {
	Version     string      `yaml:"version" validate:"required,oneof=v1"`
	Persistence Persistence `yaml:"persistence"`
	Switch      Switch      `yaml:"switch"`
	Watch       Watch       `yaml:"watch"`
	Sanitize    Sanitize    `yaml:"sanitize"`
	View        View        `yaml:"view"`
	Log         Log         `yaml:"log"`
}

type Persistence struct {
	// Debounce is the quiet period after the last edit before an autosave.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	// SaveTimeout bounds a single write.
	SaveTimeout time.Duration `yaml:"save_timeout" validate:"gt=0"`
}

type Switch struct {
	// SavingNoticeBytes is the size of dirty content above which a notice
	// is signaled before saving it on a switch.
	SavingNoticeBytes int64 `yaml:"saving_notice_bytes" validate:"gte=0"`
	// LargeFileBytes is the size of a target file above which a large file
	// advisory is signaled.
	LargeFileBytes int64 `yaml:"large_file_bytes" validate:"gte=0"`
}

type Watch struct {
	Patterns []string `yaml:"patterns" validate:"dive,required"`
	Filter   string   `yaml:"filter"`
}

type Sanitize struct {
	ExtraLinkProtocols []string `yaml:"extra_link_protocols" validate:"dive,required,ne=javascript,ne=vbscript,ne=livescript,ne=file,ne=data"`
}

type View struct {
	// ParseCacheSize is the number of parsed bodies kept per view. Zero
	// disables the cache.
	ParseCacheSize int `yaml:"parse_cache_size" validate:"gte=0"`
}

type Log struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Verbose bool   `yaml:"verbose"`
}

func ParseYAML(data []byte) (*Config, error) {
	version, err := parseVersionFromYAML(data)
	if err != nil {
		return nil, err
	}

	switch version {
	case "v1":
		cfg := Default()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse v1 config")
		}
		if err := validateConfig(cfg); err != nil {
			return nil, errors.Wrap(err, "failed to validate v1 config")
		}
		return cfg, nil
	default:
		return nil, errors.Errorf("unknown version: %q", version)
	}
}

type versionOnly struct {
	Version string `yaml:"version"`
}

func parseVersionFromYAML(data []byte) (string, error) {
	var result versionOnly

	if err := yaml.Unmarshal(data, &result); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal version")
	}

	return result.Version, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg *Config) error {
	return errors.WithStack(validate.Struct(cfg))
}
