package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PortalConfig carries operational tunables that may change without a
// redeploy: fulfillment retry policy and catalog cache behavior.
type PortalConfig struct {
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
}

type FulfillmentConfig struct {
	MaxAttempts         int `mapstructure:"maxAttempts"`
	RetryBackoffSeconds int `mapstructure:"retryBackoffSeconds"`
	QueueSize           int `mapstructure:"queueSize"`
}

type CatalogConfig struct {
	CacheTTLSeconds int `mapstructure:"cacheTTLSeconds"`
}

func DefaultPortalConfig() PortalConfig {
	return PortalConfig{
		Fulfillment: FulfillmentConfig{
			MaxAttempts:         3,
			RetryBackoffSeconds: 5,
			QueueSize:           256,
		},
		Catalog: CatalogConfig{
			CacheTTLSeconds: 600,
		},
	}
}

// PortalConfigHolder exposes the current PortalConfig and hot-reloads it
// when portal.yml changes on disk.
type PortalConfigHolder struct {
	current atomic.Value // holds PortalConfig
}

func NewPortalConfigHolder() (*PortalConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("portal")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fenuasim/config")
	v.AddConfigPath("/etc/fenuasim")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FENUASIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPortalConfig()
	v.SetDefault("portal.fulfillment.maxAttempts", defaults.Fulfillment.MaxAttempts)
	v.SetDefault("portal.fulfillment.retryBackoffSeconds", defaults.Fulfillment.RetryBackoffSeconds)
	v.SetDefault("portal.fulfillment.queueSize", defaults.Fulfillment.QueueSize)
	v.SetDefault("portal.catalog.cacheTTLSeconds", defaults.Catalog.CacheTTLSeconds)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PortalConfig
	if err := v.UnmarshalKey("portal", &cfg); err != nil {
		return nil, err
	}
	if err := validatePortalConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PortalConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PortalConfig
		if err := v.UnmarshalKey("portal", &updated); err != nil {
			log.Printf("[portal-config] reload failed: %v", err)
			return
		}
		if err := validatePortalConfig(updated); err != nil {
			log.Printf("[portal-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[portal-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PortalConfigHolder) Current() PortalConfig {
	if h == nil {
		return DefaultPortalConfig()
	}
	if cfg, ok := h.current.Load().(PortalConfig); ok {
		return cfg
	}
	return DefaultPortalConfig()
}

func validatePortalConfig(cfg PortalConfig) error {
	if cfg.Fulfillment.MaxAttempts <= 0 {
		return errors.New("fulfillment.maxAttempts must be positive")
	}
	if cfg.Fulfillment.RetryBackoffSeconds < 0 {
		return errors.New("fulfillment.retryBackoffSeconds must not be negative")
	}
	if cfg.Fulfillment.QueueSize <= 0 {
		return errors.New("fulfillment.queueSize must be positive")
	}
	if cfg.Catalog.CacheTTLSeconds <= 0 {
		return errors.New("catalog.cacheTTLSeconds must be positive")
	}
	return nil
}
