package events

import (
	"math/big"
	"strconv"

	"leadfive/core/types"
)

const (
	// TypeParticipantRegistered is emitted once a participant is placed.
	TypeParticipantRegistered = "ledger.participant.registered"
	// TypeContribution is emitted for every committed package purchase.
	TypeContribution = "ledger.contribution"
	// TypeCommissionCredited is emitted for each credited bonus.
	TypeCommissionCredited = "ledger.commission.credited"
	// TypeCreditForfeited is emitted when an allocated amount could not be
	// delivered to its recipient.
	TypeCreditForfeited = "ledger.credit.forfeited"
	// TypeParticipantCapped is emitted when a participant reaches the
	// earnings cap.
	TypeParticipantCapped = "ledger.participant.capped"
	// TypePoolDistributed is emitted after a successful pool run.
	TypePoolDistributed = "ledger.pool.distributed"
	// TypeWithdrawal is emitted after a withdrawal split.
	TypeWithdrawal = "ledger.withdrawal"
	// TypePackageUpdated is emitted when governance replaces a package.
	TypePackageUpdated = "ledger.package.updated"
	// TypeParticipantStatus is emitted when governance toggles activity.
	TypeParticipantStatus = "ledger.participant.status"
	// TypeLedgerPaused is emitted when the pause switch changes.
	TypeLedgerPaused = "ledger.paused"
)

// ParticipantRegistered captures the placement of a new participant.
type ParticipantRegistered struct {
	ID       types.Address
	Referrer *types.Address
	Tier     types.TierID
	Position uint64
	Parent   uint64
	Depth    uint64
}

// EventType implements the Event interface.
func (ParticipantRegistered) EventType() string { return TypeParticipantRegistered }

// Event converts the registration to the generic event payload.
func (e ParticipantRegistered) Event() *types.Event {
	attrs := map[string]string{
		"id":       addressString(e.ID),
		"tier":     uintString(uint64(e.Tier)),
		"position": uintString(e.Position),
		"depth":    uintString(e.Depth),
	}
	if e.Referrer != nil {
		attrs["referrer"] = addressString(*e.Referrer)
	}
	if e.Parent != types.NoParent {
		attrs["parent"] = uintString(e.Parent)
	}
	return &types.Event{Type: TypeParticipantRegistered, Attributes: attrs}
}

// Contribution summarises a committed purchase.
type Contribution struct {
	Payer     types.Address
	Tier      types.TierID
	Amount    *big.Int
	Forfeited *big.Int
	Reinvest  bool
}

// EventType implements the Event interface.
func (Contribution) EventType() string { return TypeContribution }

// Event converts the contribution to the generic event payload.
func (e Contribution) Event() *types.Event {
	return &types.Event{
		Type: TypeContribution,
		Attributes: map[string]string{
			"payer":     addressString(e.Payer),
			"tier":      uintString(uint64(e.Tier)),
			"amount":    amountString(e.Amount),
			"forfeited": amountString(e.Forfeited),
			"reinvest":  strconv.FormatBool(e.Reinvest),
		},
	}
}

// CommissionCredited captures a single credited bonus.
type CommissionCredited struct {
	Recipient types.Address
	Source    types.Address
	Category  types.Category
	Level     int
	Amount    *big.Int
}

// EventType implements the Event interface.
func (CommissionCredited) EventType() string { return TypeCommissionCredited }

// Event converts the credit to the generic event payload.
func (e CommissionCredited) Event() *types.Event {
	attrs := map[string]string{
		"recipient": addressString(e.Recipient),
		"source":    addressString(e.Source),
		"category":  string(e.Category),
		"amount":    amountString(e.Amount),
	}
	if e.Level > 0 {
		attrs["level"] = strconv.Itoa(e.Level)
	}
	return &types.Event{Type: TypeCommissionCredited, Attributes: attrs}
}

// CreditForfeited captures an undeliverable allocation.
type CreditForfeited struct {
	Recipient  *types.Address
	Category   types.Category
	Amount     *big.Int
	Reason     string
	Redirected bool
}

// EventType implements the Event interface.
func (CreditForfeited) EventType() string { return TypeCreditForfeited }

// Event converts the forfeit to the generic event payload.
func (e CreditForfeited) Event() *types.Event {
	attrs := map[string]string{
		"category":   string(e.Category),
		"amount":     amountString(e.Amount),
		"reason":     e.Reason,
		"redirected": strconv.FormatBool(e.Redirected),
	}
	if e.Recipient != nil {
		attrs["recipient"] = addressString(*e.Recipient)
	}
	return &types.Event{Type: TypeCreditForfeited, Attributes: attrs}
}

// ParticipantCapped is emitted when the cap flag flips.
type ParticipantCapped struct {
	ID            types.Address
	TotalCredited *big.Int
	Cap           *big.Int
}

// EventType implements the Event interface.
func (ParticipantCapped) EventType() string { return TypeParticipantCapped }

// Event converts the cap notice to the generic event payload.
func (e ParticipantCapped) Event() *types.Event {
	return &types.Event{
		Type: TypeParticipantCapped,
		Attributes: map[string]string{
			"id":            addressString(e.ID),
			"totalCredited": amountString(e.TotalCredited),
			"cap":           amountString(e.Cap),
		},
	}
}

// PoolDistributed summarises a pool run.
type PoolDistributed struct {
	Pool       types.PoolName
	Period     uint64
	Amount     *big.Int
	Recipients int
	Forfeited  *big.Int
}

// EventType implements the Event interface.
func (PoolDistributed) EventType() string { return TypePoolDistributed }

// Event converts the pool run to the generic event payload.
func (e PoolDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypePoolDistributed,
		Attributes: map[string]string{
			"pool":       string(e.Pool),
			"period":     uintString(e.Period),
			"amount":     amountString(e.Amount),
			"recipients": strconv.Itoa(e.Recipients),
			"forfeited":  amountString(e.Forfeited),
		},
	}
}

// Withdrawal captures the split of a withdrawal.
type Withdrawal struct {
	Participant types.Address
	Gross       *big.Int
	Paid        *big.Int
	Reinvest    *big.Int
	FractionBps uint64
}

// EventType implements the Event interface.
func (Withdrawal) EventType() string { return TypeWithdrawal }

// Event converts the withdrawal to the generic event payload.
func (e Withdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawal,
		Attributes: map[string]string{
			"participant": addressString(e.Participant),
			"gross":       amountString(e.Gross),
			"paid":        amountString(e.Paid),
			"reinvest":    amountString(e.Reinvest),
			"fractionBps": uintString(e.FractionBps),
		},
	}
}

// PackageUpdated is emitted when a package definition changes.
type PackageUpdated struct {
	Tier   types.TierID
	Price  *big.Int
	Active bool
}

// EventType implements the Event interface.
func (PackageUpdated) EventType() string { return TypePackageUpdated }

// Event converts the update to the generic event payload.
func (e PackageUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePackageUpdated,
		Attributes: map[string]string{
			"tier":   uintString(uint64(e.Tier)),
			"price":  amountString(e.Price),
			"active": strconv.FormatBool(e.Active),
		},
	}
}

// ParticipantStatus is emitted when a participant is (de)activated.
type ParticipantStatus struct {
	ID     types.Address
	Active bool
}

// EventType implements the Event interface.
func (ParticipantStatus) EventType() string { return TypeParticipantStatus }

// Event converts the status change to the generic event payload.
func (e ParticipantStatus) Event() *types.Event {
	return &types.Event{
		Type: TypeParticipantStatus,
		Attributes: map[string]string{
			"id":     addressString(e.ID),
			"active": strconv.FormatBool(e.Active),
		},
	}
}

// LedgerPaused is emitted when the pause switch changes.
type LedgerPaused struct {
	Paused bool
}

// EventType implements the Event interface.
func (LedgerPaused) EventType() string { return TypeLedgerPaused }

// Event converts the pause change to the generic event payload.
func (e LedgerPaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeLedgerPaused,
		Attributes: map[string]string{"paused": strconv.FormatBool(e.Paused)},
	}
}
