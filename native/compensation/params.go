package compensation

import (
	"fmt"
	"strings"
)

// ForfeitPolicy decides what happens to amounts that cannot be delivered to
// a recipient (missing ancestor, capped or inactive recipient, cap clamp).
type ForfeitPolicy string

const (
	// ForfeitDrop leaves undeliverable amounts unpaid.
	ForfeitDrop ForfeitPolicy = "forfeit"
	// ForfeitToHelpPool books undeliverable amounts into the global help pool.
	ForfeitToHelpPool ForfeitPolicy = "help_pool"
)

// ParseForfeitPolicy normalises a configured policy name.
func ParseForfeitPolicy(raw string) (ForfeitPolicy, error) {
	switch ForfeitPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ForfeitDrop:
		return ForfeitDrop, nil
	case ForfeitToHelpPool:
		return ForfeitToHelpPool, nil
	default:
		return "", fmt.Errorf("unknown forfeit policy %q", raw)
	}
}

const (
	DefaultCapMultiplier = 4
	DefaultUplineDepth   = 30
)

// Params configures the commission engine and cap enforcer.
type Params struct {
	CapMultiplier uint64
	UplineDepth   uint64
	Policy        ForfeitPolicy
}

// DefaultParams mirrors the published plan: 4x cap, 30 uplines, forfeit.
func DefaultParams() Params {
	return Params{CapMultiplier: DefaultCapMultiplier, UplineDepth: DefaultUplineDepth, Policy: ForfeitDrop}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.CapMultiplier == 0 {
		return fmt.Errorf("cap multiplier must be positive")
	}
	if p.UplineDepth == 0 {
		return fmt.Errorf("upline depth must be positive")
	}
	if _, err := ParseForfeitPolicy(string(p.Policy)); err != nil {
		return err
	}
	return nil
}
