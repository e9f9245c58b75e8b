package withdrawal

import (
	"math/big"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/events"
	"leadfive/core/types"
	"leadfive/native/compensation"
)

// State is the ledger surface used by withdrawals.
type State interface {
	compensation.State
	ReinvestRates() types.RateTable
}

// Processor splits withdrawable balances into a paid and a reinvested share.
type Processor struct {
	params Params
	engine *compensation.Engine
}

// NewProcessor constructs a withdrawal processor that re-submits reinvest
// amounts through engine.
func NewProcessor(params Params, engine *compensation.Engine) *Processor {
	if params.Validate() != nil {
		params = DefaultParams()
	}
	if params.MinReinvest == nil {
		params.MinReinvest = big.NewInt(0)
	}
	return &Processor{params: params, engine: engine}
}

// Params returns the processor configuration.
func (pr *Processor) Params() Params { return pr.params }

// Withdraw zeroes the participant's withdrawable balance and returns the
// split. The caller moves the paid amount.
func (pr *Processor) Withdraw(st State, id types.Address) (*types.WithdrawalEvent, error) {
	p, ok := st.Participant(id)
	if !ok {
		return nil, ledgererrors.ErrUserNotRegistered.With("participant", "%s", id.Hex())
	}
	if p.Withdrawable.Sign() <= 0 {
		return nil, ledgererrors.ErrNothingToWithdraw.With("participant", "%s", id.Hex())
	}
	gross := new(big.Int).Set(p.Withdrawable)
	fraction := pr.params.Fraction(p.DirectReferrals)
	paid := types.Apply(gross, fraction)
	reinvest := new(big.Int).Sub(gross, paid)

	p.Withdrawable = big.NewInt(0)
	p.TotalWithdrawn.Add(p.TotalWithdrawn, paid)
	p.PendingReinvest.Add(p.PendingReinvest, reinvest)

	out := &types.WithdrawalEvent{
		Participant: id,
		Gross:       gross,
		FractionBps: fraction,
		Paid:        paid,
		Reinvest:    reinvest,
		Resubmitted: big.NewInt(0),
	}
	if p.PendingReinvest.Sign() > 0 && p.PendingReinvest.Cmp(pr.params.MinReinvest) >= 0 {
		amount := new(big.Int).Set(p.PendingReinvest)
		p.PendingReinvest = big.NewInt(0)
		p.TotalReinvested.Add(p.TotalReinvested, amount)
		report, err := pr.engine.Reinvest(st, id, amount, st.ReinvestRates())
		if err != nil {
			return nil, err
		}
		out.Resubmitted = amount
		out.Reinvestment = report
	}

	st.AppendEvent(events.Withdrawal{
		Participant: id,
		Gross:       new(big.Int).Set(gross),
		Paid:        new(big.Int).Set(paid),
		Reinvest:    new(big.Int).Set(reinvest),
		FractionBps: fraction,
	})
	return out, nil
}
