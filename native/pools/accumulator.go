package pools

import (
	"math/big"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/types"
)

// PoolStore exposes mutable pool records.
type PoolStore interface {
	Pool(name types.PoolName) (*types.Pool, bool)
}

// Accumulator books the pool-bound share of purchases. It carries no
// eligibility logic.
type Accumulator struct{}

// NewAccumulator returns a pool accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// Book adds amount to the named pool.
func (a *Accumulator) Book(st PoolStore, name types.PoolName, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ledgererrors.ErrInvariantViolation.With("amount", "negative pool booking %s", amount)
	}
	pool, ok := st.Pool(name)
	if !ok {
		return ledgererrors.ErrUnknownPool.With("pool", "%s", name)
	}
	if pool.Balance == nil {
		pool.Balance = big.NewInt(0)
	}
	pool.Balance.Add(pool.Balance, amount)
	return nil
}
