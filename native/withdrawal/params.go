package withdrawal

import (
	"fmt"
	"math/big"
	"sort"

	"leadfive/core/types"
)

// FractionTier pays FractionBps of the balance to participants with at least
// MinDirects direct referrals.
type FractionTier struct {
	MinDirects  uint64 `toml:"MinDirects" yaml:"min_directs"`
	FractionBps uint64 `toml:"FractionBps" yaml:"fraction_bps"`
}

// Params configures the withdrawal split.
type Params struct {
	Tiers []FractionTier
	// MinReinvest is the pending reinvest balance at which the accumulated
	// reinvest share is re-submitted. Zero re-submits on every withdrawal.
	MinReinvest *big.Int
}

// DefaultParams returns the 70/75/80 split by direct referral count.
func DefaultParams() Params {
	return Params{
		Tiers: []FractionTier{
			{MinDirects: 0, FractionBps: 7000},
			{MinDirects: 5, FractionBps: 7500},
			{MinDirects: 20, FractionBps: 8000},
		},
		MinReinvest: big.NewInt(0),
	}
}

// Validate checks the tier table.
func (p Params) Validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("withdrawal tiers must not be empty")
	}
	var hasBase bool
	seen := make(map[uint64]struct{}, len(p.Tiers))
	for _, tier := range p.Tiers {
		if tier.FractionBps > types.BasisPointsDenominator {
			return fmt.Errorf("fraction %d exceeds %d basis points", tier.FractionBps, types.BasisPointsDenominator)
		}
		if _, dup := seen[tier.MinDirects]; dup {
			return fmt.Errorf("duplicate tier for %d directs", tier.MinDirects)
		}
		seen[tier.MinDirects] = struct{}{}
		if tier.MinDirects == 0 {
			hasBase = true
		}
	}
	if !hasBase {
		return fmt.Errorf("withdrawal tiers must include a zero-direct tier")
	}
	if p.MinReinvest != nil && p.MinReinvest.Sign() < 0 {
		return fmt.Errorf("min reinvest must not be negative")
	}
	return nil
}

// Fraction returns the withdrawable fraction in basis points for a
// participant with the given direct referral count.
func (p Params) Fraction(directs uint64) uint64 {
	tiers := append([]FractionTier(nil), p.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinDirects > tiers[j].MinDirects })
	for _, tier := range tiers {
		if directs >= tier.MinDirects {
			return tier.FractionBps
		}
	}
	return 0
}
