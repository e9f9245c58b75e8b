package withdrawal

import (
	"errors"
	"math/big"
	"testing"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/state"
	"leadfive/core/types"
	"leadfive/native/compensation"
	"leadfive/native/matrix"
)

func addr(n byte) types.Address {
	var a types.Address
	a[19] = n
	return a
}

type fixture struct {
	st   *state.Batch
	root *types.Participant
	user *types.Participant
	pr   *Processor
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	st := state.NewLedger().Begin()
	pl := matrix.NewPlacer(matrix.DefaultParams())
	root := types.NewParticipant(addr(1), nil, 1, 0)
	root.Investment = big.NewInt(1_000_000)
	st.InsertParticipant(root)
	if _, err := pl.Place(st, root, false); err != nil {
		t.Fatalf("place root: %v", err)
	}
	ref := root.ID
	user := types.NewParticipant(addr(2), &ref, 1, 0)
	user.Investment = big.NewInt(1000)
	st.InsertParticipant(user)
	if _, err := pl.Place(st, user, false); err != nil {
		t.Fatalf("place user: %v", err)
	}
	engine := compensation.NewEngine(compensation.DefaultParams(), nil, nil)
	return &fixture{st: st, root: root, user: user, pr: NewProcessor(params, engine)}
}

func TestFractionTiers(t *testing.T) {
	params := DefaultParams()
	cases := map[uint64]uint64{0: 7000, 4: 7000, 5: 7500, 19: 7500, 20: 8000, 300: 8000}
	for directs, want := range cases {
		if got := params.Fraction(directs); got != want {
			t.Fatalf("directs %d: fraction %d, want %d", directs, got, want)
		}
	}
}

func TestWithdrawSplitsWithoutLoss(t *testing.T) {
	for _, directs := range []uint64{0, 5, 20} {
		for _, balance := range []int64{1, 7, 99, 101, 1_000_003} {
			f := newFixture(t, DefaultParams())
			f.user.DirectReferrals = directs
			f.user.Withdrawable = big.NewInt(balance)

			out, err := f.pr.Withdraw(f.st, f.user.ID)
			if err != nil {
				t.Fatalf("withdraw: %v", err)
			}
			sum := new(big.Int).Add(out.Paid, out.Reinvest)
			if sum.Int64() != balance {
				t.Fatalf("directs %d balance %d: paid %s + reinvest %s != balance", directs, balance, out.Paid, out.Reinvest)
			}
			p, _ := f.st.PeekParticipant(f.user.ID)
			if p.Withdrawable.Sign() != 0 {
				t.Fatalf("withdrawable not zeroed: %s", p.Withdrawable)
			}
		}
	}
}

func TestWithdrawResubmitsReinvestToUpline(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.user.Withdrawable = big.NewInt(1000)

	out, err := f.pr.Withdraw(f.st, f.user.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.Paid.Int64() != 700 || out.Reinvest.Int64() != 300 {
		t.Fatalf("unexpected split: paid %s reinvest %s", out.Paid, out.Reinvest)
	}
	if out.Reinvestment == nil || out.Resubmitted.Int64() != 300 {
		t.Fatalf("reinvest not resubmitted")
	}
	// level 1 (12%) plus the whole upline share (30%) reach the single ancestor
	if got := out.Reinvestment.CreditedTo(f.root.ID); got.Int64() != 36+90 {
		t.Fatalf("root credited %s, want 126", got)
	}
	p, _ := f.st.PeekParticipant(f.user.ID)
	if p.Investment.Int64() != 1000 || p.TotalReinvested.Int64() != 300 || p.TotalWithdrawn.Int64() != 700 {
		t.Fatalf("unexpected counters: investment %s reinvested %s withdrawn %s", p.Investment, p.TotalReinvested, p.TotalWithdrawn)
	}
}

func TestWithdrawBatchesReinvestBelowThreshold(t *testing.T) {
	params := DefaultParams()
	params.MinReinvest = big.NewInt(500)
	f := newFixture(t, params)

	f.user.Withdrawable = big.NewInt(1000)
	out, err := f.pr.Withdraw(f.st, f.user.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.Reinvestment != nil || out.Resubmitted.Sign() != 0 {
		t.Fatalf("reinvest resubmitted below threshold")
	}
	f.user.Withdrawable = big.NewInt(1000)
	out, err = f.pr.Withdraw(f.st, f.user.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.Resubmitted.Int64() != 600 {
		t.Fatalf("resubmitted %s, want 600", out.Resubmitted)
	}
	p, _ := f.st.PeekParticipant(f.user.ID)
	if p.PendingReinvest.Sign() != 0 {
		t.Fatalf("pending reinvest not cleared: %s", p.PendingReinvest)
	}
}

func TestWithdrawErrors(t *testing.T) {
	f := newFixture(t, DefaultParams())
	if _, err := f.pr.Withdraw(f.st, addr(9)); !errors.Is(err, ledgererrors.ErrUserNotRegistered) {
		t.Fatalf("expected ErrUserNotRegistered, got %v", err)
	}
	if _, err := f.pr.Withdraw(f.st, f.user.ID); !errors.Is(err, ledgererrors.ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}
}
