package config

import (
	"leadfive/core/ledger"
	"leadfive/core/types"
	"leadfive/native/compensation"
	"leadfive/native/matrix"
	"leadfive/native/pools"
	"leadfive/native/withdrawal"
)

// LedgerConfig converts the plan into engine parameters.
func (p *Plan) LedgerConfig() (ledger.Config, error) {
	policy, err := compensation.ParseForfeitPolicy(p.ForfeitPolicy)
	if err != nil {
		return ledger.Config{}, err
	}
	minReinvest, err := p.MinReinvestAmount()
	if err != nil {
		return ledger.Config{}, err
	}
	ranks := make([]pools.RankRule, 0, len(p.Ranks))
	for _, r := range p.Ranks {
		rank, err := types.ParseRank(r.Name)
		if err != nil {
			return ledger.Config{}, err
		}
		ranks = append(ranks, pools.RankRule{Rank: rank, MinTeamSize: r.MinTeamSize, MinDirects: r.MinDirects, Weight: r.Weight})
	}
	cfg := ledger.Config{
		Matrix: matrix.Params{
			Width:          p.Matrix.Width,
			MaxDepth:       p.Matrix.MaxDepth,
			SpilloverDepth: p.Matrix.SpilloverDepth,
		},
		Compensation: compensation.Params{
			CapMultiplier: p.CapMultiplier,
			UplineDepth:   p.Matrix.UplineDepth,
			Policy:        policy,
		},
		Pools: pools.Params{
			Ranks:          ranks,
			ClubMinTier:    types.TierID(p.Club.MinTier),
			ClubMinDirects: p.Club.MinDirects,
		},
		Withdrawal: withdrawal.Params{
			Tiers:       append([]withdrawal.FractionTier(nil), p.Withdrawal...),
			MinReinvest: minReinvest,
		},
	}
	if err := cfg.Validate(); err != nil {
		return ledger.Config{}, err
	}
	return cfg, nil
}
