package types

import (
	"math/big"
	"sort"
)

// Category labels a bonus class in a distribution report.
type Category string

const (
	CategorySponsor Category = "sponsor"
	CategoryLevel   Category = "level"
	CategoryUpline  Category = "upline"
	CategoryLeader  Category = "leader_pool"
	CategoryHelp    Category = "help_pool"
	CategoryClub    Category = "club_pool"
)

// Credit records a single amount delivered to a participant.
type Credit struct {
	Recipient Address  `json:"recipient"`
	Category  Category `json:"category"`
	Level     int      `json:"level,omitempty"`
	Allocated *big.Int `json:"allocated"`
	Credited  *big.Int `json:"credited"`
	Capped    bool     `json:"capped,omitempty"`
}

// Forfeited returns the allocated amount the recipient could not receive.
func (c Credit) Forfeited() *big.Int {
	out := new(big.Int).Sub(CopyAmount(c.Allocated), CopyAmount(c.Credited))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// DistributionReport itemises the effects of a contribution or a pool run.
type DistributionReport struct {
	Source     Address               `json:"source"`
	Tier       TierID                `json:"tier,omitempty"`
	Amount     *big.Int              `json:"amount"`
	Pool       PoolName              `json:"pool,omitempty"`
	Period     uint64                `json:"period,omitempty"`
	Categories map[Category]*big.Int `json:"categories"`
	Credits    []Credit              `json:"credits"`
	Pools      map[PoolName]*big.Int `json:"pools"`
	Unpaid     *big.Int              `json:"unpaid"`
	Forfeited  *big.Int              `json:"forfeited"`
	Redirected *big.Int              `json:"redirected"`
}

// NewDistributionReport returns an empty report for amount.
func NewDistributionReport(source Address, amount *big.Int) *DistributionReport {
	return &DistributionReport{
		Source:     source,
		Amount:     CopyAmount(amount),
		Categories: make(map[Category]*big.Int),
		Pools:      make(map[PoolName]*big.Int),
		Unpaid:     big.NewInt(0),
		Forfeited:  big.NewInt(0),
		Redirected: big.NewInt(0),
	}
}

// AddCategory accumulates the computed amount for a category.
func (r *DistributionReport) AddCategory(cat Category, amount *big.Int) {
	if amount == nil {
		return
	}
	current, ok := r.Categories[cat]
	if !ok {
		r.Categories[cat] = new(big.Int).Set(amount)
		return
	}
	current.Add(current, amount)
}

// AddPool accumulates an amount booked into a pool.
func (r *DistributionReport) AddPool(name PoolName, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	current, ok := r.Pools[name]
	if !ok {
		r.Pools[name] = new(big.Int).Set(amount)
		return
	}
	current.Add(current, amount)
}

// CategoryTotal sums every category amount.
func (r *DistributionReport) CategoryTotal() *big.Int {
	total := big.NewInt(0)
	for _, amount := range r.Categories {
		total.Add(total, amount)
	}
	return total
}

// CreditedTo sums the amounts credited to recipient.
func (r *DistributionReport) CreditedTo(recipient Address) *big.Int {
	total := big.NewInt(0)
	for _, credit := range r.Credits {
		if credit.Recipient == recipient {
			total.Add(total, credit.Credited)
		}
	}
	return total
}

// Recipients returns the credited recipients in first-credit order.
func (r *DistributionReport) Recipients() []Address {
	seen := make(map[Address]struct{}, len(r.Credits))
	out := make([]Address, 0, len(r.Credits))
	for _, credit := range r.Credits {
		if _, ok := seen[credit.Recipient]; ok {
			continue
		}
		seen[credit.Recipient] = struct{}{}
		out = append(out, credit.Recipient)
	}
	return out
}

// SortedCategories returns the category keys in lexical order.
func (r *DistributionReport) SortedCategories() []Category {
	keys := make([]Category, 0, len(r.Categories))
	for k := range r.Categories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// WithdrawalEvent is the transient result of a withdrawal.
type WithdrawalEvent struct {
	Participant  Address             `json:"participant"`
	Gross        *big.Int            `json:"gross"`
	FractionBps  uint64              `json:"fractionBps"`
	Paid         *big.Int            `json:"paid"`
	Reinvest     *big.Int            `json:"reinvest"`
	Resubmitted  *big.Int            `json:"resubmitted"`
	Reinvestment *DistributionReport `json:"reinvestment,omitempty"`
}
