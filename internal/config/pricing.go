package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig defines product prices in integer paise. Prices feed order
// creation only; once an order exists its amount is immutable.
type PricingConfig struct {
	Currency string           `mapstructure:"currency"`
	Products []ProductPricing `mapstructure:"products"`

	LinkExpiryMinutes    int `mapstructure:"linkExpiryMinutes"`
	AbandonedDiscountPct int `mapstructure:"abandonedDiscountPct"`
}

type ProductPricing struct {
	ProductType string `mapstructure:"productType"`
	AmountPaise int64  `mapstructure:"amountPaise"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency: "INR",
		Products: []ProductPricing{
			{ProductType: "KUNDALI", AmountPaise: 9900},
			{ProductType: "MILAN", AmountPaise: 14900},
			{ProductType: "QNA", AmountPaise: 4900},
		},
		LinkExpiryMinutes:    15,
		AbandonedDiscountPct: 10,
	}
}

// AmountFor returns the configured price for a product type, or false when
// the product is not sold.
func (c PricingConfig) AmountFor(productType string) (int64, bool) {
	for _, p := range c.Products {
		if strings.EqualFold(p.ProductType, productType) {
			return p.AmountPaise, true
		}
	}
	return 0, false
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder() (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payments/config") // Volume-mounted config
	v.AddConfigPath("/etc/payments")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("PAYMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultPricingConfig()
		v.SetDefault("pricing.currency", defaults.Currency)
		v.SetDefault("pricing.products", defaults.Products)
		v.SetDefault("pricing.linkExpiryMinutes", defaults.LinkExpiryMinutes)
		v.SetDefault("pricing.abandonedDiscountPct", defaults.AbandonedDiscountPct)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	if v := h.current.Load(); v != nil {
		return v.(PricingConfig)
	}
	return DefaultPricingConfig()
}

func validatePricingConfig(cfg PricingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("pricing.currency cannot be empty")
	}
	if len(cfg.Products) == 0 {
		return errors.New("pricing.products cannot be empty")
	}
	for _, p := range cfg.Products {
		if p.AmountPaise <= 0 {
			return errors.New("pricing.products amounts must be positive")
		}
	}
	return nil
}
