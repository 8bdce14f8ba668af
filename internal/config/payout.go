package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PayoutConfig carries operator-tunable payout policy. It is hot-reloaded so
// sequence prefixes and approval limits can change without a restart.
type PayoutConfig struct {
	SequencePrefix  string  `mapstructure:"sequencePrefix"`
	DefaultCurrency string  `mapstructure:"defaultCurrency"`
	MaxCommission   float64 `mapstructure:"maxCommission"`
	MaxPercentage   float64 `mapstructure:"maxPercentage"`
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		SequencePrefix:  "COMM",
		DefaultCurrency: "USD",
		MaxCommission:   1_000_000,
		MaxPercentage:   100,
	}
}

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

func NewPayoutConfigHolder() (*PayoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payora/config") // Volume-mounted config
	v.AddConfigPath("/etc/payora")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("PAYORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPayoutConfig()
		v.SetDefault("payout.sequencePrefix", defaults.SequencePrefix)
		v.SetDefault("payout.defaultCurrency", defaults.DefaultCurrency)
		v.SetDefault("payout.maxCommission", defaults.MaxCommission)
		v.SetDefault("payout.maxPercentage", defaults.MaxPercentage)
	}

	var cfg PayoutConfig
	if err := v.UnmarshalKey("payout", &cfg); err != nil {
		return nil, err
	}
	if err := validatePayoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutConfig
		if err := v.UnmarshalKey("payout", &updated); err != nil {
			log.Printf("[payout-config] reload failed: %v", err)
			return
		}
		if err := validatePayoutConfig(updated); err != nil {
			log.Printf("[payout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPayoutConfigHolder returns a holder pinned to cfg, with no file
// watching. Intended for tests and tooling.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	return h.current.Load().(PayoutConfig)
}

func validatePayoutConfig(cfg PayoutConfig) error {
	if strings.TrimSpace(cfg.SequencePrefix) == "" {
		return errors.New("payout.sequencePrefix cannot be empty")
	}
	if cfg.MaxCommission <= 0 {
		return errors.New("payout.maxCommission must be positive")
	}
	if cfg.MaxPercentage <= 0 {
		return errors.New("payout.maxPercentage must be positive")
	}
	return nil
}
