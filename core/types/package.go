package types

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// BasisPointsDenominator is the fixed denominator for every rate in the plan.
const BasisPointsDenominator uint64 = 10_000

// RateTable splits a purchase amount across the bonus categories. All rates
// are basis points and must sum to BasisPointsDenominator.
type RateTable struct {
	SponsorRate      uint64   `json:"sponsorRate" toml:"Sponsor"`
	LevelRates       []uint64 `json:"levelRates" toml:"Levels"`
	GlobalUplineRate uint64   `json:"globalUplineRate" toml:"GlobalUpline"`
	LeaderPoolRate   uint64   `json:"leaderPoolRate" toml:"LeaderPool"`
	HelpPoolRate     uint64   `json:"helpPoolRate" toml:"HelpPool"`
	ClubPoolRate     uint64   `json:"clubPoolRate" toml:"ClubPool"`
}

// Total returns the sum of every rate in the table.
func (t RateTable) Total() uint64 {
	total := t.SponsorRate + t.GlobalUplineRate + t.LeaderPoolRate + t.HelpPoolRate + t.ClubPoolRate
	for _, rate := range t.LevelRates {
		total += rate
	}
	return total
}

// LevelTotal returns the sum of the per-level rates.
func (t RateTable) LevelTotal() uint64 {
	var total uint64
	for _, rate := range t.LevelRates {
		total += rate
	}
	return total
}

// Validate checks that the table distributes exactly 100%. Every rate is
// bounded first so the sum cannot wrap.
func (t RateTable) Validate() error {
	named := []struct {
		name string
		rate uint64
	}{
		{"sponsor", t.SponsorRate},
		{"global upline", t.GlobalUplineRate},
		{"leader pool", t.LeaderPoolRate},
		{"help pool", t.HelpPoolRate},
		{"club pool", t.ClubPoolRate},
	}
	for _, r := range named {
		if r.rate > BasisPointsDenominator {
			return fmt.Errorf("%s rate %d exceeds %d", r.name, r.rate, BasisPointsDenominator)
		}
	}
	if uint64(len(t.LevelRates)) > BasisPointsDenominator {
		return fmt.Errorf("%d level rates exceed %d", len(t.LevelRates), BasisPointsDenominator)
	}
	for i, rate := range t.LevelRates {
		if rate > BasisPointsDenominator {
			return fmt.Errorf("level %d rate %d exceeds %d", i+1, rate, BasisPointsDenominator)
		}
	}
	if total := t.Total(); total != BasisPointsDenominator {
		return fmt.Errorf("rates sum to %d basis points, want %d", total, BasisPointsDenominator)
	}
	return nil
}

// Clone returns a deep copy of the rate table.
func (t RateTable) Clone() RateTable {
	clone := t
	clone.LevelRates = append([]uint64(nil), t.LevelRates...)
	return clone
}

// Apply returns amount × rate / 10000 using integer arithmetic.
func Apply(amount *big.Int, rate uint64) *big.Int {
	if amount == nil || rate == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return out.Quo(out, new(big.Int).SetUint64(BasisPointsDenominator))
}

// NormalizePackageName trims and NFC-normalises a display name so the same
// label typed on different systems stores identical bytes.
func NormalizePackageName(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// Package is a purchasable tier.
type Package struct {
	Tier   TierID    `json:"tier"`
	Name   string    `json:"name"`
	Price  *big.Int  `json:"price"`
	Rates  RateTable `json:"rates"`
	Active bool      `json:"active"`
}

// Clone returns a deep copy of the package.
func (p *Package) Clone() *Package {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Price = CopyAmount(p.Price)
	clone.Rates = p.Rates.Clone()
	return &clone
}

// Validate checks price positivity and the rate-sum invariant.
func (p *Package) Validate() error {
	if p == nil {
		return fmt.Errorf("nil package")
	}
	if p.Tier == 0 {
		return fmt.Errorf("tier id must be non-zero")
	}
	if p.Price == nil || p.Price.Sign() <= 0 {
		return fmt.Errorf("tier %d: price must be positive", p.Tier)
	}
	if err := p.Rates.Validate(); err != nil {
		return fmt.Errorf("tier %d: %w", p.Tier, err)
	}
	return nil
}

// DefaultReinvestRates is the table applied to the reinvested share of a
// withdrawal: 40% across ten levels, 30% global upline and 30% help pool.
func DefaultReinvestRates() RateTable {
	return RateTable{
		LevelRates:       []uint64{1200, 400, 400, 400, 400, 400, 200, 200, 200, 200},
		GlobalUplineRate: 3000,
		HelpPoolRate:     3000,
	}
}
