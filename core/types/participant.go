package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a participant. Participants are keyed by the EVM address
// that the identity layer resolved for the caller.
type Address = common.Address

// TierID identifies a purchasable package.
type TierID uint32

// Rank captures the leadership qualification of a participant.
type Rank uint8

const (
	RankNone Rank = iota
	RankShiningStar
	RankSilverStar
)

// String returns the display name of the rank.
func (r Rank) String() string {
	switch r {
	case RankNone:
		return "none"
	case RankShiningStar:
		return "shining_star"
	case RankSilverStar:
		return "silver_star"
	default:
		return "unknown"
	}
}

// ParseRank resolves a configured rank name.
func ParseRank(raw string) (Rank, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "":
		return RankNone, nil
	case "shining_star", "shiningstar":
		return RankShiningStar, nil
	case "silver_star", "silverstar":
		return RankSilverStar, nil
	default:
		return RankNone, fmt.Errorf("unknown rank %q", raw)
	}
}

// NoPosition marks a participant that has not been placed in the matrix.
const NoPosition = ^uint64(0)

// Participant is the ledger record for a registered member.
type Participant struct {
	ID              Address  `json:"id"`
	Referrer        *Address `json:"referrer,omitempty"`
	Tier            TierID   `json:"tier"`
	Investment      *big.Int `json:"investment"`
	TotalCredited   *big.Int `json:"totalCredited"`
	Capped          bool     `json:"capped"`
	DirectReferrals uint64   `json:"directReferrals"`
	TeamSize        uint64   `json:"teamSize"`
	Rank            Rank     `json:"rank"`
	Position        uint64   `json:"position"`
	Depth           uint64   `json:"depth"`
	RegisteredAt    int64    `json:"registeredAt"`
	Withdrawable    *big.Int `json:"withdrawable"`
	PendingReinvest *big.Int `json:"pendingReinvest"`
	TotalWithdrawn  *big.Int `json:"totalWithdrawn"`
	TotalReinvested *big.Int `json:"totalReinvested"`
	Active          bool     `json:"active"`
}

// NewParticipant returns a participant with zeroed balances that has not yet
// been placed.
func NewParticipant(id Address, referrer *Address, tier TierID, registeredAt int64) *Participant {
	p := &Participant{
		ID:           id,
		Tier:         tier,
		Position:     NoPosition,
		RegisteredAt: registeredAt,
		Active:       true,
	}
	if referrer != nil {
		ref := *referrer
		p.Referrer = &ref
	}
	p.Normalize()
	return p
}

// Normalize replaces nil balances with zero values.
func (p *Participant) Normalize() *Participant {
	if p == nil {
		return nil
	}
	p.Investment = nonNil(p.Investment)
	p.TotalCredited = nonNil(p.TotalCredited)
	p.Withdrawable = nonNil(p.Withdrawable)
	p.PendingReinvest = nonNil(p.PendingReinvest)
	p.TotalWithdrawn = nonNil(p.TotalWithdrawn)
	p.TotalReinvested = nonNil(p.TotalReinvested)
	return p
}

// Clone returns a deep copy of the participant.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Referrer != nil {
		ref := *p.Referrer
		clone.Referrer = &ref
	}
	clone.Investment = CopyAmount(p.Investment)
	clone.TotalCredited = CopyAmount(p.TotalCredited)
	clone.Withdrawable = CopyAmount(p.Withdrawable)
	clone.PendingReinvest = CopyAmount(p.PendingReinvest)
	clone.TotalWithdrawn = CopyAmount(p.TotalWithdrawn)
	clone.TotalReinvested = CopyAmount(p.TotalReinvested)
	return &clone
}

// Placed reports whether the participant owns a matrix position.
func (p *Participant) Placed() bool {
	return p != nil && p.Position != NoPosition
}

// EarningsCap returns investment × multiplier.
func (p *Participant) EarningsCap(multiplier uint64) *big.Int {
	if p == nil || p.Investment == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(p.Investment, new(big.Int).SetUint64(multiplier))
}

// CopyAmount returns a copy of the supplied amount, treating nil as zero.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
