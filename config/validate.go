package config

import (
	"fmt"

	"leadfive/core/types"
	"leadfive/native/compensation"
)

// ValidatePlan checks every rate table, tier and threshold in the plan.
func ValidatePlan(p *Plan) error {
	if p == nil {
		return fmt.Errorf("nil plan")
	}
	if _, err := compensation.ParseForfeitPolicy(p.ForfeitPolicy); err != nil {
		return err
	}
	if len(p.Packages) == 0 {
		return fmt.Errorf("plan defines no packages")
	}
	seen := make(map[uint32]struct{}, len(p.Packages))
	for _, pp := range p.Packages {
		if _, dup := seen[pp.Tier]; dup {
			return fmt.Errorf("duplicate package tier %d", pp.Tier)
		}
		seen[pp.Tier] = struct{}{}
	}
	pkgs, err := p.Catalogue()
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		if err := pkg.Validate(); err != nil {
			return err
		}
	}
	if err := p.Reinvest.Validate(); err != nil {
		return fmt.Errorf("reinvest: %w", err)
	}
	if _, err := p.MinReinvestAmount(); err != nil {
		return fmt.Errorf("min reinvest: %w", err)
	}
	var prevTeam uint64
	for i, r := range p.Ranks {
		rank, err := types.ParseRank(r.Name)
		if err != nil {
			return err
		}
		if rank == types.RankNone {
			return fmt.Errorf("rank %d must be named", i)
		}
		if i > 0 && r.MinTeamSize < prevTeam {
			return fmt.Errorf("rank %s: team thresholds must not decrease", r.Name)
		}
		prevTeam = r.MinTeamSize
	}
	var prevDirects uint64
	for i, tier := range p.Withdrawal {
		if i > 0 && tier.MinDirects <= prevDirects {
			return fmt.Errorf("withdrawal tiers must be sorted by directs")
		}
		prevDirects = tier.MinDirects
	}
	_, err = p.LedgerConfig()
	return err
}
