package pools

import (
	"errors"
	"math/big"
	"sort"
	"testing"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/events"
	"leadfive/core/state"
	"leadfive/core/types"
	"leadfive/native/capping"
)

func addr(n byte) types.Address {
	var a types.Address
	a[19] = n
	return a
}

func member(st *state.Batch, n byte, investment int64) *types.Participant {
	p := types.NewParticipant(addr(n), nil, 1, 0)
	p.Investment = big.NewInt(investment)
	p.Position = st.AppendNode(&types.MatrixNode{Owner: p.ID, Parent: types.NoParent})
	st.InsertParticipant(p)
	return p
}

func fund(t *testing.T, st *state.Batch, name types.PoolName, amount int64) {
	t.Helper()
	if err := NewAccumulator().Book(st, name, big.NewInt(amount)); err != nil {
		t.Fatalf("book: %v", err)
	}
}

func newDistributor(redirect bool) *Distributor {
	return NewDistributor(DefaultParams(), capping.NewCapEnforcer(4), nil, redirect)
}

func TestHelpPoolEqualShare(t *testing.T) {
	st := state.NewLedger().Begin()
	for i := byte(1); i <= 3; i++ {
		member(st, i, 100)
	}
	fund(t, st, types.GlobalHelpPool, 30)

	report, err := newDistributor(false).Distribute(st, types.GlobalHelpPool, 1)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	for i := byte(1); i <= 3; i++ {
		if got := report.CreditedTo(addr(i)); got.Int64() != 10 {
			t.Fatalf("participant %d credited %s, want 10", i, got)
		}
	}
	pool, _ := st.Pool(types.GlobalHelpPool)
	if pool.Balance.Sign() != 0 || pool.LastDistributedPeriod != 1 {
		t.Fatalf("pool not reset: %+v", pool)
	}
}

func TestHelpPoolRemainderToLowestAddress(t *testing.T) {
	st := state.NewLedger().Begin()
	for _, n := range []byte{4, 2, 3, 1} {
		member(st, n, 100)
	}
	fund(t, st, types.GlobalHelpPool, 30)

	report, err := newDistributor(false).Distribute(st, types.GlobalHelpPool, 0)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	var got []int64
	for _, credit := range report.Credits {
		got = append(got, credit.Credited.Int64())
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []int64{7, 7, 7, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("shares %v, want %v", got, want)
		}
	}
	if report.CreditedTo(addr(1)).Int64() != 9 {
		t.Fatalf("remainder should go to lowest address")
	}
}

func TestDistributeIsIdempotentPerPeriod(t *testing.T) {
	st := state.NewLedger().Begin()
	member(st, 1, 100)
	fund(t, st, types.GlobalHelpPool, 30)
	d := newDistributor(false)

	if _, err := d.Distribute(st, types.GlobalHelpPool, 5); err != nil {
		t.Fatalf("first run: %v", err)
	}
	fund(t, st, types.GlobalHelpPool, 10)
	_, err := d.Distribute(st, types.GlobalHelpPool, 5)
	if !errors.Is(err, ledgererrors.ErrAlreadyDistributed) {
		t.Fatalf("expected ErrAlreadyDistributed, got %v", err)
	}
	if _, err := d.Distribute(st, types.GlobalHelpPool, 4); !errors.Is(err, ledgererrors.ErrAlreadyDistributed) {
		t.Fatalf("expected earlier period rejected, got %v", err)
	}
	p, _ := st.PeekParticipant(addr(1))
	if p.TotalCredited.Int64() != 30 {
		t.Fatalf("participant credited twice: %s", p.TotalCredited)
	}
	if _, err := d.Distribute(st, types.GlobalHelpPool, 6); err != nil {
		t.Fatalf("next period: %v", err)
	}
}

func TestDistributeEmptyEligibleSet(t *testing.T) {
	st := state.NewLedger().Begin()
	member(st, 1, 100)
	fund(t, st, types.LeaderBonusPool, 50)

	_, err := newDistributor(false).Distribute(st, types.LeaderBonusPool, 1)
	if !errors.Is(err, ledgererrors.ErrEmptyEligibleSet) {
		t.Fatalf("expected ErrEmptyEligibleSet, got %v", err)
	}
	pool, _ := st.Pool(types.LeaderBonusPool)
	if pool.Balance.Int64() != 50 || pool.Distributed {
		t.Fatalf("pool mutated on failure: %+v", pool)
	}
}

func TestLeaderPoolWeightsByRank(t *testing.T) {
	st := state.NewLedger().Begin()
	shining := member(st, 1, 1000)
	shining.TeamSize = 250
	shining.DirectReferrals = 10
	silver := member(st, 2, 1000)
	silver.TeamSize = 500
	member(st, 3, 1000)
	fund(t, st, types.LeaderBonusPool, 90)

	report, err := newDistributor(false).Distribute(st, types.LeaderBonusPool, 1)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if report.CreditedTo(addr(1)).Int64() != 30 || report.CreditedTo(addr(2)).Int64() != 60 {
		t.Fatalf("unexpected leader split: %+v", report.Credits)
	}
	if report.CreditedTo(addr(3)).Sign() != 0 {
		t.Fatalf("unranked participant paid")
	}
	p, _ := st.PeekParticipant(addr(2))
	if p.Rank != types.RankSilverStar {
		t.Fatalf("rank not persisted: %s", p.Rank)
	}
}

func TestClubPoolEligibility(t *testing.T) {
	st := state.NewLedger().Begin()
	top := member(st, 1, 200)
	top.Tier = 4
	member(st, 2, 30)
	fund(t, st, types.ClubPool, 40)

	report, err := newDistributor(false).Distribute(st, types.ClubPool, 1)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if report.CreditedTo(addr(1)).Int64() != 40 || len(report.Recipients()) != 1 {
		t.Fatalf("unexpected club payout: %+v", report.Credits)
	}
}

func TestPoolPayoutRespectsCap(t *testing.T) {
	for _, redirect := range []bool{false, true} {
		st := state.NewLedger().Begin()
		leader := member(st, 1, 10)
		leader.TeamSize = 500
		fund(t, st, types.LeaderBonusPool, 100)

		report, err := newDistributor(redirect).Distribute(st, types.LeaderBonusPool, 1)
		if err != nil {
			t.Fatalf("distribute: %v", err)
		}
		if report.CreditedTo(addr(1)).Int64() != 40 || report.Forfeited.Int64() != 60 {
			t.Fatalf("redirect=%v: credited %s forfeited %s", redirect, report.CreditedTo(addr(1)), report.Forfeited)
		}
		help, _ := st.Pool(types.GlobalHelpPool)
		wantHelp := int64(0)
		if redirect {
			wantHelp = 60
		}
		if help.Balance.Int64() != wantHelp {
			t.Fatalf("redirect=%v: help pool %s, want %d", redirect, help.Balance, wantHelp)
		}
		var distributed bool
		for _, evt := range st.Events() {
			if evt.EventType() == events.TypePoolDistributed {
				distributed = true
			}
		}
		if !distributed {
			t.Fatalf("missing pool distributed event")
		}
	}
}

func TestBookRejectsUnknownPool(t *testing.T) {
	st := state.NewLedger().Begin()
	err := NewAccumulator().Book(st, types.PoolName("bogus"), big.NewInt(1))
	if !errors.Is(err, ledgererrors.ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}
