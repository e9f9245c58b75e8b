package capping

import (
	"math/big"

	"leadfive/core/events"
	"leadfive/core/types"
)

// Reasons reported when an allocation is not (fully) delivered.
const (
	ReasonUnknown     = "unknown_recipient"
	ReasonInactive    = "inactive"
	ReasonCapped      = "capped"
	ReasonNotInvested = "not_invested"
	ReasonCapClamp    = "cap_clamp"
)

// DefaultMultiplier is the published 4x earnings cap.
const DefaultMultiplier = 4

// CreditState is the ledger surface the cap enforcer mutates.
type CreditState interface {
	Participant(id types.Address) (*types.Participant, bool)
	AppendEvent(events.Event)
}

// CreditResult describes the effect of a single credit.
type CreditResult struct {
	Credited  *big.Int
	Forfeited *big.Int
	Reason    string
	CappedNow bool
}

// CapEnforcer clamps lifetime credits to investment × multiplier.
type CapEnforcer struct {
	multiplier uint64
}

// NewCapEnforcer constructs an enforcer for the multiplier.
func NewCapEnforcer(multiplier uint64) *CapEnforcer {
	if multiplier == 0 {
		multiplier = DefaultMultiplier
	}
	return &CapEnforcer{multiplier: multiplier}
}

// Multiplier returns the configured cap multiple.
func (c *CapEnforcer) Multiplier() uint64 { return c.multiplier }

// Room returns how much more the participant may be credited.
func (c *CapEnforcer) Room(p *types.Participant) *big.Int {
	room := new(big.Int).Sub(p.EarningsCap(c.multiplier), types.CopyAmount(p.TotalCredited))
	if room.Sign() < 0 {
		return big.NewInt(0)
	}
	return room
}

// Credit delivers up to amount to recipient. Capped, inactive and
// not-yet-invested recipients receive nothing. Clamping is never an error.
func (c *CapEnforcer) Credit(st CreditState, recipient types.Address, amount *big.Int) CreditResult {
	res := CreditResult{Credited: big.NewInt(0), Forfeited: types.CopyAmount(amount)}
	if amount == nil || amount.Sign() <= 0 {
		res.Forfeited = big.NewInt(0)
		return res
	}
	p, ok := st.Participant(recipient)
	switch {
	case !ok:
		res.Reason = ReasonUnknown
		return res
	case !p.Active:
		res.Reason = ReasonInactive
		return res
	case p.Capped:
		res.Reason = ReasonCapped
		return res
	case p.Investment.Sign() <= 0:
		res.Reason = ReasonNotInvested
		return res
	}

	room := c.Room(p)
	credited := new(big.Int).Set(amount)
	if credited.Cmp(room) > 0 {
		credited.Set(room)
	}
	p.TotalCredited.Add(p.TotalCredited, credited)
	p.Withdrawable.Add(p.Withdrawable, credited)
	res.Credited = credited
	res.Forfeited = new(big.Int).Sub(amount, credited)
	if amount.Cmp(room) > 0 {
		p.Capped = true
		res.CappedNow = true
		res.Reason = ReasonCapClamp
		st.AppendEvent(events.ParticipantCapped{
			ID:            p.ID,
			TotalCredited: new(big.Int).Set(p.TotalCredited),
			Cap:           p.EarningsCap(c.multiplier),
		})
	}
	return res
}
