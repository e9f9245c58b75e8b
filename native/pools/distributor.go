package pools

import (
	"bytes"
	"math/big"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/events"
	"leadfive/core/types"
	"leadfive/native/capping"
)

// State is the ledger surface the distributor needs.
type State interface {
	capping.CreditState
	PoolStore
	PeekParticipant(id types.Address) (*types.Participant, bool)
	EachParticipant(fn func(*types.Participant) bool)
}

// Distributor pays out pool balances at period boundaries.
type Distributor struct {
	params      Params
	cap         *capping.CapEnforcer
	accumulator *Accumulator
	redirect    bool
}

// NewDistributor constructs a distributor. When redirect is set, amounts the
// cap enforcer refuses during leader and club runs are booked into the global
// help pool.
func NewDistributor(params Params, enforcer *capping.CapEnforcer, accumulator *Accumulator, redirect bool) *Distributor {
	if enforcer == nil {
		enforcer = capping.NewCapEnforcer(capping.DefaultMultiplier)
	}
	if accumulator == nil {
		accumulator = NewAccumulator()
	}
	return &Distributor{params: params, cap: enforcer, accumulator: accumulator, redirect: redirect}
}

// Params returns the eligibility configuration.
func (d *Distributor) Params() Params { return d.params }

type allocation struct {
	id     types.Address
	weight uint64
}

// eligible returns the qualifying participants for a pool with their
// weights, in arena order. Ranks are recomputed from current counters.
func (d *Distributor) eligible(st State, name types.PoolName) []allocation {
	var out []allocation
	st.EachParticipant(func(p *types.Participant) bool {
		if !p.Active || p.Capped || p.Investment.Sign() <= 0 {
			return true
		}
		switch name {
		case types.LeaderBonusPool:
			if w := d.params.Weight(d.params.RankOf(p)); w > 0 {
				out = append(out, allocation{id: p.ID, weight: w})
			}
		case types.GlobalHelpPool:
			out = append(out, allocation{id: p.ID, weight: 1})
		case types.ClubPool:
			if p.Tier >= d.params.ClubMinTier && p.DirectReferrals >= d.params.ClubMinDirects {
				out = append(out, allocation{id: p.ID, weight: 1})
			}
		}
		return true
	})
	return out
}

// Distribute pays the pool balance to the eligible set for period and resets
// the pool. The caller commits or discards the surrounding batch, so a
// failure leaves the pool untouched.
func (d *Distributor) Distribute(st State, name types.PoolName, period uint64) (*types.DistributionReport, error) {
	pool, ok := st.Pool(name)
	if !ok {
		return nil, ledgererrors.ErrUnknownPool.With("pool", "%s", name)
	}
	if pool.AlreadyDistributed(period) {
		return nil, ledgererrors.ErrAlreadyDistributed.With("period", "pool %s last distributed period %d", name, pool.LastDistributedPeriod)
	}
	d.refreshRanks(st)

	eligible := d.eligible(st, name)
	if len(eligible) == 0 {
		return nil, ledgererrors.ErrEmptyEligibleSet.With("pool", "%s", name)
	}
	balance := types.CopyAmount(pool.Balance)
	report := types.NewDistributionReport(types.Address{}, balance)
	report.Pool = name
	report.Period = period
	report.AddCategory(poolCategory(name), balance)

	shares := split(balance, eligible)
	paid := big.NewInt(0)
	for i, alloc := range eligible {
		share := shares[i]
		paid.Add(paid, share)
		if share.Sign() == 0 {
			continue
		}
		res := d.cap.Credit(st, alloc.id, share)
		report.Credits = append(report.Credits, types.Credit{
			Recipient: alloc.id,
			Category:  poolCategory(name),
			Allocated: new(big.Int).Set(share),
			Credited:  res.Credited,
			Capped:    res.CappedNow,
		})
		if res.Credited.Sign() > 0 {
			st.AppendEvent(events.CommissionCredited{
				Recipient: alloc.id,
				Category:  poolCategory(name),
				Amount:    new(big.Int).Set(res.Credited),
			})
		}
		if res.Forfeited.Sign() > 0 {
			report.Forfeited.Add(report.Forfeited, res.Forfeited)
			recipient := alloc.id
			redirected := d.redirect && name != types.GlobalHelpPool
			st.AppendEvent(events.CreditForfeited{
				Recipient:  &recipient,
				Category:   poolCategory(name),
				Amount:     new(big.Int).Set(res.Forfeited),
				Reason:     res.Reason,
				Redirected: redirected,
			})
		}
	}
	if paid.Cmp(balance) != 0 {
		return nil, ledgererrors.ErrInvariantViolation.With("pool", "allocated %s of %s", paid, balance)
	}

	pool.Balance = big.NewInt(0)
	pool.LastDistributedPeriod = period
	pool.Distributed = true

	if d.redirect && name != types.GlobalHelpPool && report.Forfeited.Sign() > 0 {
		if err := d.accumulator.Book(st, types.GlobalHelpPool, report.Forfeited); err != nil {
			return nil, err
		}
		report.Redirected.Set(report.Forfeited)
		report.AddPool(types.GlobalHelpPool, report.Forfeited)
	}

	st.AppendEvent(events.PoolDistributed{
		Pool:       name,
		Period:     period,
		Amount:     new(big.Int).Set(balance),
		Recipients: len(eligible),
		Forfeited:  new(big.Int).Set(report.Forfeited),
	})
	return report, nil
}

// refreshRanks writes the recomputed rank back to records whose stored rank
// is stale.
func (d *Distributor) refreshRanks(st State) {
	var stale []types.Address
	st.EachParticipant(func(p *types.Participant) bool {
		if d.params.RankOf(p) != p.Rank {
			stale = append(stale, p.ID)
		}
		return true
	})
	for _, id := range stale {
		if p, ok := st.Participant(id); ok {
			p.Rank = d.params.RankOf(p)
		}
	}
}

// split divides balance pro-rata by weight. The integer remainder goes to
// the eligible participant with the lowest address.
func split(balance *big.Int, eligible []allocation) []*big.Int {
	shares := make([]*big.Int, len(eligible))
	var total uint64
	for _, alloc := range eligible {
		total += alloc.weight
	}
	denom := new(big.Int).SetUint64(total)
	distributed := big.NewInt(0)
	lowest := 0
	for i, alloc := range eligible {
		share := new(big.Int).Mul(balance, new(big.Int).SetUint64(alloc.weight))
		share.Quo(share, denom)
		shares[i] = share
		distributed.Add(distributed, share)
		if bytes.Compare(alloc.id[:], eligible[lowest].id[:]) < 0 {
			lowest = i
		}
	}
	if remainder := new(big.Int).Sub(balance, distributed); remainder.Sign() > 0 {
		shares[lowest].Add(shares[lowest], remainder)
	}
	return shares
}

func poolCategory(name types.PoolName) types.Category {
	switch name {
	case types.LeaderBonusPool:
		return types.CategoryLeader
	case types.ClubPool:
		return types.CategoryClub
	default:
		return types.CategoryHelp
	}
}
