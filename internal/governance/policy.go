package governance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/declinewatch/declinewatch-go/internal/fiscal"
)

// Policy carries the audit parameters for one field: the governance
// variance threshold, the settlement price, and the sweep price range.
type Policy struct {
	ThresholdPct   float64   `yaml:"threshold_pct"`
	PricePerBarrel float64   `yaml:"price_per_barrel_gbp"`
	SweepPrices    []float64 `yaml:"sweep_prices_gbp"`
}

// PolicyConfig is the governance policy for the whole portfolio: defaults
// plus per-field overrides keyed by field name.
type PolicyConfig struct {
	Defaults Policy            `yaml:"defaults"`
	Fields   map[string]Policy `yaml:"fields"`
}

// LoadPolicy reads the YAML policy at path over the built-in defaults.
// An empty path returns the defaults unchanged.
func LoadPolicy(path string) (PolicyConfig, error) {
	cfg := PolicyConfig{
		Defaults: Policy{
			ThresholdPct:   DefaultThresholdPct,
			PricePerBarrel: fiscal.DefaultPricePerBarrel.InexactFloat64(),
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("governance: read policy: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("governance: parse policy: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PolicyFor returns the effective policy for a field: the defaults with
// any per-field override applied on top. Zero-valued override fields
// inherit the default.
func (c PolicyConfig) PolicyFor(fieldName string) Policy {
	if c.Fields != nil {
		if override, ok := c.Fields[fieldName]; ok {
			return mergePolicy(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergePolicy(base, override Policy) Policy {
	if override.ThresholdPct != 0 {
		base.ThresholdPct = override.ThresholdPct
	}
	if override.PricePerBarrel != 0 {
		base.PricePerBarrel = override.PricePerBarrel
	}
	if len(override.SweepPrices) != 0 {
		base.SweepPrices = override.SweepPrices
	}
	return base
}

func (c PolicyConfig) validate() error {
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}
	for name, p := range c.Fields {
		// Zero values in an override inherit the default, so only
		// negatives are rejected here.
		if p.ThresholdPct < 0 {
			return fmt.Errorf("governance: field %q: %w", name, ErrInvalidThreshold)
		}
		if p.PricePerBarrel < 0 {
			return fmt.Errorf("governance: field %q: %w", name, fiscal.ErrInvalidPrice)
		}
		for _, sp := range p.SweepPrices {
			if sp <= 0 {
				return fmt.Errorf("governance: field %q sweep price: %w", name, fiscal.ErrInvalidPrice)
			}
		}
	}
	return nil
}

func (p Policy) validate(scope string) error {
	if p.ThresholdPct <= 0 {
		return fmt.Errorf("governance: %s: %w", scope, ErrInvalidThreshold)
	}
	if p.PricePerBarrel <= 0 {
		return fmt.Errorf("governance: %s: %w", scope, fiscal.ErrInvalidPrice)
	}
	for _, sp := range p.SweepPrices {
		if sp <= 0 {
			return fmt.Errorf("governance: %s sweep price: %w", scope, fiscal.ErrInvalidPrice)
		}
	}
	return nil
}
