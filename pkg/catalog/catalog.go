// Package catalog loads the static configuration tables referenced
// throughout the hub: the action cost catalog, the energy pack price list,
// and the rate limit rule set.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Action describes the energy cost and refund eligibility of one named action.
type Action struct {
	Name           string `yaml:"name"`
	EnergyCost     int    `yaml:"energy_cost"`
	RefundEligible bool   `yaml:"refund_eligible"`
}

// IsFree reports whether the action costs nothing and is therefore rejected
// by the refund pipeline's free-actions check.
func (a Action) IsFree() bool { return a.EnergyCost == 0 }

// ActionCatalog maps action name to its cost/eligibility entry.
type ActionCatalog struct {
	actions map[string]Action
}

type actionFile struct {
	Actions []Action `yaml:"actions"`
}

// LoadActionCatalog reads the action catalog from a YAML file.
func LoadActionCatalog(path string) (*ActionCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading action catalog: %w", err)
	}

	var f actionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing action catalog YAML: %w", err)
	}

	return newActionCatalog(f.Actions), nil
}

func newActionCatalog(actions []Action) *ActionCatalog {
	m := make(map[string]Action, len(actions))
	for _, a := range actions {
		m[a.Name] = a
	}
	return &ActionCatalog{actions: m}
}

// Lookup returns the Action entry for name, or ok=false if unknown.
func (c *ActionCatalog) Lookup(name string) (Action, bool) {
	a, ok := c.actions[name]
	return a, ok
}

// EnergyPack describes a purchasable energy bundle or the bundled unlimited
// subscription pack.
type EnergyPack struct {
	Code                    string `yaml:"code"`
	PriceCents              int    `yaml:"price_cents"`
	EnergyUnits             int    `yaml:"energy_units"`
	FirstPurchaseBonusUnits int    `yaml:"first_purchase_bonus_units"`
	Currency                string `yaml:"currency"`
	Unlimited               bool   `yaml:"unlimited"`
}

// PackCatalog maps pack code to its EnergyPack entry.
type PackCatalog struct {
	packs map[string]EnergyPack
}

type packFile struct {
	Packs []EnergyPack `yaml:"packs"`
}

// LoadPackCatalog reads the energy pack price list from a YAML file.
func LoadPackCatalog(path string) (*PackCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading energy pack catalog: %w", err)
	}

	var f packFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing energy pack catalog YAML: %w", err)
	}

	m := make(map[string]EnergyPack, len(f.Packs))
	for _, p := range f.Packs {
		m[p.Code] = p
	}
	return &PackCatalog{packs: m}, nil
}

// Lookup returns the EnergyPack entry for code, or ok=false if unknown.
func (c *PackCatalog) Lookup(code string) (EnergyPack, bool) {
	p, ok := c.packs[code]
	return p, ok
}

// All returns every configured pack, in no particular order.
func (c *PackCatalog) All() []EnergyPack {
	out := make([]EnergyPack, 0, len(c.packs))
	for _, p := range c.packs {
		out = append(out, p)
	}
	return out
}

// RateLimitRule describes one scope's strategy and limits.
type RateLimitRule struct {
	Scope                string `yaml:"scope"`
	Strategy             string `yaml:"strategy"`
	RequestsPerWindow    int    `yaml:"requests_per_window"`
	WindowSeconds        int    `yaml:"window_seconds"`
	BurstSize            int    `yaml:"burst_size"`
	BlockDurationSeconds int    `yaml:"block_duration_seconds"`
}

// RuleCatalog maps scope to its RateLimitRule.
type RuleCatalog struct {
	rules map[string]RateLimitRule
}

type ruleFile struct {
	Rules []RateLimitRule `yaml:"rules"`
}

// LoadRuleCatalog reads the rate limit rule set from a YAML file.
func LoadRuleCatalog(path string) (*RuleCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rate limit rules: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rate limit rules YAML: %w", err)
	}

	m := make(map[string]RateLimitRule, len(f.Rules))
	for _, r := range f.Rules {
		m[r.Scope] = r
	}
	return &RuleCatalog{rules: m}, nil
}

// Lookup returns the RateLimitRule entry for scope, or ok=false if unknown.
func (c *RuleCatalog) Lookup(scope string) (RateLimitRule, bool) {
	r, ok := c.rules[scope]
	return r, ok
}
