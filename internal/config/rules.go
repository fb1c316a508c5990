package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rules holds the business constants that operators may override with a YAML file.
type Rules struct {
	Commission CommissionRules `yaml:"commission"`
	Payout     PayoutRules     `yaml:"payout"`
	Ads        AdRules         `yaml:"ads"`
	Webhooks   WebhookRules    `yaml:"webhooks"`
}

type CommissionRules struct {
	// Rates are percentages keyed by transaction type.
	Rates         map[string]decimal.Decimal `yaml:"rates"`
	DefaultRate   decimal.Decimal            `yaml:"default_rate"`
	PremiumFactor decimal.Decimal            `yaml:"premium_factor"`
	PremiumTiers  []string                   `yaml:"premium_tiers"`
}

type PayoutRules struct {
	Minimum decimal.Decimal `yaml:"minimum"`
}

type AdRules struct {
	ImpressionCost decimal.Decimal `yaml:"impression_cost"`
	ClickCost      decimal.Decimal `yaml:"click_cost"`
}

type WebhookRules struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

func DefaultRules() Rules {
	return Rules{
		Commission: CommissionRules{
			Rates: map[string]decimal.Decimal{
				"appointment":  decimal.NewFromInt(5),
				"product_sale": decimal.NewFromInt(10),
				"service":      decimal.NewFromInt(7),
			},
			DefaultRate:   decimal.NewFromInt(5),
			PremiumFactor: decimal.RequireFromString("0.6"),
			PremiumTiers:  []string{"pro", "enterprise"},
		},
		Payout: PayoutRules{
			Minimum: decimal.RequireFromString("100.00"),
		},
		Ads: AdRules{
			ImpressionCost: decimal.RequireFromString("0.10"),
			ClickCost:      decimal.RequireFromString("1.00"),
		},
		Webhooks: WebhookRules{
			MaxAttempts: 3,
			Backoff:     time.Minute,
		},
	}
}

// LoadFile overlays the values present in a YAML file on top of r.
// Keys missing from the file keep their current value.
func (r *Rules) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, r); err != nil {
		return fmt.Errorf("parse rules file %s: %w", path, err)
	}

	if r.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("webhooks.max_attempts must be at least 1")
	}
	if r.Payout.Minimum.IsNegative() {
		return fmt.Errorf("payout.minimum must not be negative")
	}

	return nil
}

// RateFor returns the commission percentage for a transaction type, discounted
// for professionals on a premium tier.
func (c CommissionRules) RateFor(transactionType string, premium bool) decimal.Decimal {
	rate, ok := c.Rates[transactionType]
	if !ok {
		rate = c.DefaultRate
	}
	if premium {
		rate = rate.Mul(c.PremiumFactor)
	}
	return rate
}

func (c CommissionRules) IsPremiumTier(tier string) bool {
	for _, t := range c.PremiumTiers {
		if strings.EqualFold(t, tier) {
			return true
		}
	}
	return false
}
