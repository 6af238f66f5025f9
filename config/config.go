package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/lubricentro/usagepredict/core/metrics"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/infra/amqp"
	"github.com/lubricentro/usagepredict/infra/cache"
	"github.com/lubricentro/usagepredict/infra/mqtt"
	"github.com/lubricentro/usagepredict/infra/store"
	"github.com/lubricentro/usagepredict/jobs/refresh"
)

type Config struct {
	Prediction prediction.Config `json:"prediction"`
	Store      store.Config      `json:"store"`
	Refresh    refresh.Config    `json:"refresh"`
	HTTP       HTTPConfig        `json:"http"`
	Metrics    metrics.Config    `json:"metrics"`
	MQTT       mqtt.Config       `json:"mqtt"`
	AMQP       amqp.Config       `json:"amqp"`
	Redis      cache.Config      `json:"redis"`
	Sentry     SentryConfig      `json:"sentry"`
	Logging    LoggingConfig     `json:"logging"`
}

// Load reads a YAML or JSON file, applies K_ environment overrides
// (K_STORE__DSN sets store.dsn), then defaults and validation.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Prediction.SetDefaults()
	c.Store.SetDefaults()
	c.Refresh.SetDefaults()
	c.HTTP.SetDefaults()
	c.MQTT.SetDefaults()
	c.AMQP.SetDefaults()
	c.Redis.SetDefaults()
	c.Sentry.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section, prefixing errors with the section name.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"prediction", c.Prediction.Validate},
		{"store", c.Store.Validate},
		{"refresh", c.Refresh.Validate},
		{"http", c.HTTP.Validate},
		{"redis", c.Redis.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}
