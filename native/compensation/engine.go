package compensation

import (
	"math/big"

	"github.com/holiman/uint256"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/events"
	"leadfive/core/types"
	"leadfive/native/capping"
	"leadfive/native/matrix"
	"leadfive/native/pools"
)

// Reasons reported for allocations that have no recipient.
const (
	ReasonNoSponsor  = "no_sponsor"
	ReasonNoAncestor = "no_ancestor"
)

// State is the ledger surface the commission engine needs.
type State interface {
	matrix.View
	capping.CreditState
	pools.PoolStore
}

// Engine converts purchases and reinvestments into bonus credits and pool
// bookings.
type Engine struct {
	params      Params
	cap         *capping.CapEnforcer
	accumulator *pools.Accumulator
}

// NewEngine constructs a commission engine. A nil enforcer is derived from
// the configured cap multiplier.
func NewEngine(params Params, enforcer *capping.CapEnforcer, accumulator *pools.Accumulator) *Engine {
	if params.Validate() != nil {
		params = DefaultParams()
	}
	if enforcer == nil {
		enforcer = capping.NewCapEnforcer(params.CapMultiplier)
	}
	if accumulator == nil {
		accumulator = pools.NewAccumulator()
	}
	return &Engine{params: params, cap: enforcer, accumulator: accumulator}
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// CapEnforcer exposes the enforcer shared with the pool distributor.
func (e *Engine) CapEnforcer() *capping.CapEnforcer { return e.cap }

// Accumulator exposes the pool accumulator.
func (e *Engine) Accumulator() *pools.Accumulator { return e.accumulator }

// Contribute records a package purchase by payer and splits its price. The
// payer's investment grows by the price and the tier is raised to the
// highest package bought.
func (e *Engine) Contribute(st State, payer types.Address, pkg *types.Package) (*types.DistributionReport, error) {
	if pkg == nil || !pkg.Active {
		return nil, ledgererrors.ErrInvalidPackage.With("tier", "package unavailable")
	}
	p, ok := st.Participant(payer)
	if !ok {
		return nil, ledgererrors.ErrUserNotRegistered.With("payer", "%s", payer.Hex())
	}
	if !p.Active {
		return nil, ledgererrors.ErrParticipantBlocked.With("payer", "%s", payer.Hex())
	}
	if err := ensureWord(pkg.Price); err != nil {
		return nil, err
	}
	p.Investment.Add(p.Investment, pkg.Price)
	if err := ensureWord(p.Investment); err != nil {
		return nil, err
	}
	if pkg.Tier > p.Tier {
		p.Tier = pkg.Tier
	}
	report, err := e.distribute(st, p, pkg.Price, pkg.Rates, false)
	if err != nil {
		return nil, err
	}
	report.Tier = pkg.Tier
	return report, nil
}

// Reinvest re-submits amount on behalf of payer through rates without
// changing the payer's investment.
func (e *Engine) Reinvest(st State, payer types.Address, amount *big.Int, rates types.RateTable) (*types.DistributionReport, error) {
	p, ok := st.Participant(payer)
	if !ok {
		return nil, ledgererrors.ErrUserNotRegistered.With("payer", "%s", payer.Hex())
	}
	return e.distribute(st, p, amount, rates, true)
}

func (e *Engine) distribute(st State, payer *types.Participant, amount *big.Int, rates types.RateTable, reinvest bool) (*types.DistributionReport, error) {
	if err := rates.Validate(); err != nil {
		return nil, ledgererrors.ErrInvariantViolation.With("rates", "%v", err)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ledgererrors.ErrInvalidAmount.With("amount", "must be positive")
	}
	if err := ensureWord(amount); err != nil {
		return nil, err
	}

	report := types.NewDistributionReport(payer.ID, amount)
	limit := uint64(len(rates.LevelRates))
	if e.params.UplineDepth > limit {
		limit = e.params.UplineDepth
	}
	var ancestors []types.Address
	if payer.Placed() {
		ancestors = matrix.Ancestors(st, payer.Position, limit)
	}
	allocated := big.NewInt(0)

	sponsor := types.Apply(amount, rates.SponsorRate)
	allocated.Add(allocated, sponsor)
	report.AddCategory(types.CategorySponsor, sponsor)
	if sponsor.Sign() > 0 {
		if payer.Referrer == nil {
			e.unpaid(st, report, types.CategorySponsor, sponsor, ReasonNoSponsor)
		} else {
			e.credit(st, report, payer.ID, *payer.Referrer, types.CategorySponsor, 0, sponsor)
		}
	}

	for i, rate := range rates.LevelRates {
		level := types.Apply(amount, rate)
		allocated.Add(allocated, level)
		report.AddCategory(types.CategoryLevel, level)
		if level.Sign() == 0 {
			continue
		}
		if i >= len(ancestors) {
			e.unpaid(st, report, types.CategoryLevel, level, ReasonNoAncestor)
			continue
		}
		e.credit(st, report, payer.ID, ancestors[i], types.CategoryLevel, i+1, level)
	}

	upline := types.Apply(amount, rates.GlobalUplineRate)
	allocated.Add(allocated, upline)
	report.AddCategory(types.CategoryUpline, upline)
	if upline.Sign() > 0 {
		reach := uint64(len(ancestors))
		if reach > e.params.UplineDepth {
			reach = e.params.UplineDepth
		}
		if reach == 0 {
			e.unpaid(st, report, types.CategoryUpline, upline, ReasonNoAncestor)
		} else {
			share, remainder := new(big.Int).QuoRem(upline, new(big.Int).SetUint64(reach), new(big.Int))
			for j := uint64(0); j < reach; j++ {
				amt := new(big.Int).Set(share)
				if j == 0 {
					amt.Add(amt, remainder)
				}
				if amt.Sign() == 0 {
					continue
				}
				e.credit(st, report, payer.ID, ancestors[j], types.CategoryUpline, 0, amt)
			}
		}
	}

	leader := types.Apply(amount, rates.LeaderPoolRate)
	help := types.Apply(amount, rates.HelpPoolRate)
	club := types.Apply(amount, rates.ClubPoolRate)
	allocated.Add(allocated, leader).Add(allocated, help).Add(allocated, club)
	dust := new(big.Int).Sub(amount, allocated)
	if dust.Sign() < 0 {
		return nil, ledgererrors.ErrInvariantViolation.With("amount", "allocated %s exceeds %s", allocated, amount)
	}
	help.Add(help, dust)

	for _, booking := range []struct {
		cat  types.Category
		pool types.PoolName
		amt  *big.Int
	}{
		{types.CategoryLeader, types.LeaderBonusPool, leader},
		{types.CategoryHelp, types.GlobalHelpPool, help},
		{types.CategoryClub, types.ClubPool, club},
	} {
		report.AddCategory(booking.cat, booking.amt)
		if err := e.accumulator.Book(st, booking.pool, booking.amt); err != nil {
			return nil, err
		}
		report.AddPool(booking.pool, booking.amt)
	}

	undelivered := new(big.Int).Add(report.Unpaid, report.Forfeited)
	if e.params.Policy == ForfeitToHelpPool && undelivered.Sign() > 0 {
		if err := e.accumulator.Book(st, types.GlobalHelpPool, undelivered); err != nil {
			return nil, err
		}
		report.Redirected.Set(undelivered)
		report.AddPool(types.GlobalHelpPool, undelivered)
	}

	if err := checkConservation(report); err != nil {
		return nil, err
	}

	st.AppendEvent(events.Contribution{
		Payer:     payer.ID,
		Tier:      payer.Tier,
		Amount:    new(big.Int).Set(amount),
		Forfeited: new(big.Int).Sub(undelivered, report.Redirected),
		Reinvest:  reinvest,
	})
	return report, nil
}

func (e *Engine) credit(st State, report *types.DistributionReport, source, recipient types.Address, cat types.Category, level int, amount *big.Int) {
	res := e.cap.Credit(st, recipient, amount)
	report.Credits = append(report.Credits, types.Credit{
		Recipient: recipient,
		Category:  cat,
		Level:     level,
		Allocated: new(big.Int).Set(amount),
		Credited:  res.Credited,
		Capped:    res.CappedNow,
	})
	if res.Credited.Sign() > 0 {
		st.AppendEvent(events.CommissionCredited{
			Recipient: recipient,
			Source:    source,
			Category:  cat,
			Level:     level,
			Amount:    new(big.Int).Set(res.Credited),
		})
	}
	if res.Forfeited.Sign() > 0 {
		report.Forfeited.Add(report.Forfeited, res.Forfeited)
		st.AppendEvent(events.CreditForfeited{
			Recipient:  &recipient,
			Category:   cat,
			Amount:     new(big.Int).Set(res.Forfeited),
			Reason:     res.Reason,
			Redirected: e.params.Policy == ForfeitToHelpPool,
		})
	}
}

func (e *Engine) unpaid(st State, report *types.DistributionReport, cat types.Category, amount *big.Int, reason string) {
	report.Unpaid.Add(report.Unpaid, amount)
	st.AppendEvent(events.CreditForfeited{
		Category:   cat,
		Amount:     new(big.Int).Set(amount),
		Reason:     reason,
		Redirected: e.params.Policy == ForfeitToHelpPool,
	})
}

// checkConservation verifies that the category split covers the amount and
// that every allocated unit was credited, booked, or accounted as
// undelivered.
func checkConservation(report *types.DistributionReport) error {
	if total := report.CategoryTotal(); total.Cmp(report.Amount) != 0 {
		return ledgererrors.ErrInvariantViolation.With("categories", "sum %s != amount %s", total, report.Amount)
	}
	settled := new(big.Int).Add(report.Unpaid, report.Forfeited)
	for _, credit := range report.Credits {
		settled.Add(settled, credit.Credited)
	}
	for _, booked := range report.Pools {
		settled.Add(settled, booked)
	}
	settled.Sub(settled, report.Redirected)
	if settled.Cmp(report.Amount) != 0 {
		return ledgererrors.ErrInvariantViolation.With("credits", "settled %s != amount %s", settled, report.Amount)
	}
	return nil
}

// ensureWord rejects amounts that would not fit a 256-bit ledger word.
func ensureWord(amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return ledgererrors.ErrInvalidAmount.With("amount", "negative")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ledgererrors.ErrInvalidAmount.With("amount", "exceeds 256 bits")
	}
	return nil
}
