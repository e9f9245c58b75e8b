package pools

import (
	"fmt"
	"sort"

	"leadfive/core/types"
)

// RankRule defines the thresholds for a leadership rank and its share weight
// in the leader bonus pool.
type RankRule struct {
	Rank        types.Rank
	MinTeamSize uint64
	MinDirects  uint64
	Weight      uint64
}

// Params configures pool eligibility.
type Params struct {
	Ranks          []RankRule
	ClubMinTier    types.TierID
	ClubMinDirects uint64
}

// DefaultParams returns the Shining Star / Silver Star qualification table.
func DefaultParams() Params {
	return Params{
		Ranks: []RankRule{
			{Rank: types.RankShiningStar, MinTeamSize: 250, MinDirects: 10, Weight: 1},
			{Rank: types.RankSilverStar, MinTeamSize: 500, MinDirects: 0, Weight: 2},
		},
		ClubMinTier:    4,
		ClubMinDirects: 0,
	}
}

// Validate checks the rank table.
func (p Params) Validate() error {
	seen := make(map[types.Rank]struct{}, len(p.Ranks))
	for _, rule := range p.Ranks {
		if rule.Rank == types.RankNone {
			return fmt.Errorf("rank rule must name a rank")
		}
		if _, dup := seen[rule.Rank]; dup {
			return fmt.Errorf("duplicate rank rule %s", rule.Rank)
		}
		seen[rule.Rank] = struct{}{}
		if rule.Weight == 0 {
			return fmt.Errorf("rank %s: weight must be positive", rule.Rank)
		}
	}
	return nil
}

// RankOf evaluates the highest rank whose thresholds the participant meets.
func (p Params) RankOf(part *types.Participant) types.Rank {
	if part == nil {
		return types.RankNone
	}
	rules := append([]RankRule(nil), p.Ranks...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].Rank > rules[j].Rank })
	for _, rule := range rules {
		if part.TeamSize >= rule.MinTeamSize && part.DirectReferrals >= rule.MinDirects {
			return rule.Rank
		}
	}
	return types.RankNone
}

// Weight returns the leader pool weight for rank.
func (p Params) Weight(rank types.Rank) uint64 {
	for _, rule := range p.Ranks {
		if rule.Rank == rank {
			return rule.Weight
		}
	}
	return 0
}
