package config

import (
	"math/big"

	"leadfive/core/types"
	"leadfive/native/withdrawal"
)

// Plan is the compensation plan: package catalogue, rate tables, pool rules
// and withdrawal policy. Amounts are decimal strings in whole token units.
type Plan struct {
	Decimals      uint8                     `toml:"Decimals"`
	CapMultiplier uint64                    `toml:"CapMultiplier"`
	ForfeitPolicy string                    `toml:"ForfeitPolicy"`
	MinReinvest   string                    `toml:"MinReinvest"`
	Matrix        MatrixPlan                `toml:"Matrix"`
	Ranks         []RankPlan                `toml:"Rank"`
	Club          ClubPlan                  `toml:"Club"`
	Withdrawal    []withdrawal.FractionTier `toml:"WithdrawalTier"`
	Reinvest      types.RateTable           `toml:"Reinvest"`
	Packages      []PackagePlan             `toml:"Package"`
}

// MatrixPlan configures placement and upline reach.
type MatrixPlan struct {
	Width          uint64 `toml:"Width"`
	MaxDepth       uint64 `toml:"MaxDepth"`
	SpilloverDepth uint64 `toml:"SpilloverDepth"`
	UplineDepth    uint64 `toml:"UplineDepth"`
}

// RankPlan defines a leadership rank threshold.
type RankPlan struct {
	Name        string `toml:"Name"`
	MinTeamSize uint64 `toml:"MinTeamSize"`
	MinDirects  uint64 `toml:"MinDirects"`
	Weight      uint64 `toml:"Weight"`
}

// ClubPlan configures club pool eligibility.
type ClubPlan struct {
	MinTier    uint32 `toml:"MinTier"`
	MinDirects uint64 `toml:"MinDirects"`
}

// PackagePlan is a purchasable tier.
type PackagePlan struct {
	Tier   uint32          `toml:"Tier"`
	Name   string          `toml:"Name"`
	Price  string          `toml:"Price"`
	Active bool            `toml:"Active"`
	Rates  types.RateTable `toml:"Rates"`
}

// DefaultPlan returns the four-package USDT plan.
func DefaultPlan() *Plan {
	rates := types.RateTable{
		SponsorRate:      4000,
		LevelRates:       []uint64{300, 100, 100, 100, 100, 100, 50, 50, 50, 50},
		GlobalUplineRate: 1000,
		LeaderPoolRate:   1000,
		HelpPoolRate:     3000,
	}
	pkg := func(tier uint32, name, price string) PackagePlan {
		return PackagePlan{Tier: tier, Name: name, Price: price, Active: true, Rates: rates.Clone()}
	}
	return &Plan{
		Decimals:      18,
		CapMultiplier: 4,
		ForfeitPolicy: "forfeit",
		MinReinvest:   "0",
		Matrix:        MatrixPlan{Width: 2, MaxDepth: 30, UplineDepth: 30},
		Ranks: []RankPlan{
			{Name: "shining_star", MinTeamSize: 250, MinDirects: 10, Weight: 1},
			{Name: "silver_star", MinTeamSize: 500, Weight: 2},
		},
		Club: ClubPlan{MinTier: 4},
		Withdrawal: []withdrawal.FractionTier{
			{MinDirects: 0, FractionBps: 7000},
			{MinDirects: 5, FractionBps: 7500},
			{MinDirects: 20, FractionBps: 8000},
		},
		Reinvest: types.DefaultReinvestRates(),
		Packages: []PackagePlan{
			pkg(1, "Entry", "30"),
			pkg(2, "Standard", "50"),
			pkg(3, "Advanced", "100"),
			pkg(4, "Premium", "200"),
		},
	}
}

// Catalogue converts the package plans to ledger packages ordered by tier.
func (p *Plan) Catalogue() ([]*types.Package, error) {
	out := make([]*types.Package, 0, len(p.Packages))
	for _, pp := range p.Packages {
		price, err := ParseUnits(pp.Price, p.Decimals)
		if err != nil {
			return nil, err
		}
		out = append(out, &types.Package{
			Tier:   types.TierID(pp.Tier),
			Name:   types.NormalizePackageName(pp.Name),
			Price:  price,
			Rates:  pp.Rates.Clone(),
			Active: pp.Active,
		})
	}
	return out, nil
}

// MinReinvestAmount returns the reinvest batching threshold in base units.
func (p *Plan) MinReinvestAmount() (*big.Int, error) {
	if p.MinReinvest == "" {
		return big.NewInt(0), nil
	}
	return ParseUnits(p.MinReinvest, p.Decimals)
}
