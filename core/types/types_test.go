package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRateTableValidate(t *testing.T) {
	table := RateTable{
		SponsorRate:      4000,
		LevelRates:       []uint64{300, 100, 100, 100, 100, 100, 50, 50, 50, 50},
		GlobalUplineRate: 1000,
		LeaderPoolRate:   1000,
		HelpPoolRate:     3000,
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("expected valid table: %v", err)
	}
	if table.LevelTotal() != 1000 {
		t.Fatalf("unexpected level total %d", table.LevelTotal())
	}
	table.ClubPoolRate = 1
	if err := table.Validate(); err == nil {
		t.Fatalf("expected sum mismatch")
	}
	if err := DefaultReinvestRates().Validate(); err != nil {
		t.Fatalf("default reinvest table invalid: %v", err)
	}

	// Oversized rates whose uint64 sum wraps to exactly 10000.
	wrapping := []RateTable{
		{SponsorRate: ^uint64(0), HelpPoolRate: 10001},
		{GlobalUplineRate: ^uint64(0) - 9999, LeaderPoolRate: 20000},
		{ClubPoolRate: ^uint64(0), LevelRates: []uint64{5000, 5001}},
	}
	for i, bad := range wrapping {
		if bad.Total() != BasisPointsDenominator {
			t.Fatalf("case %d: expected wrapped total, got %d", i, bad.Total())
		}
		if err := bad.Validate(); err == nil {
			t.Fatalf("case %d: wrapped table accepted", i)
		}
	}

	clone := table.Clone()
	clone.LevelRates[0] = 0
	if table.LevelRates[0] != 300 {
		t.Fatalf("clone shares level rates")
	}
}

func TestNormalizePackageName(t *testing.T) {
	decomposed := "  Cafe\u0301 Premium "
	if got := NormalizePackageName(decomposed); got != "Caf\u00e9 Premium" {
		t.Fatalf("unexpected normalised name %q", got)
	}
	if got := NormalizePackageName("Entry"); got != "Entry" {
		t.Fatalf("ascii name changed: %q", got)
	}
}

func TestApplyTruncates(t *testing.T) {
	if got := Apply(big.NewInt(100), 4000); got.Int64() != 40 {
		t.Fatalf("expected 40, got %s", got)
	}
	if got := Apply(big.NewInt(99), 3333); got.Int64() != 32 {
		t.Fatalf("expected 32, got %s", got)
	}
	if got := Apply(nil, 5000); got.Sign() != 0 {
		t.Fatalf("expected zero for nil amount")
	}
}

func TestParticipantCloneAndCap(t *testing.T) {
	ref := common.HexToAddress("0x01")
	p := NewParticipant(common.HexToAddress("0x02"), &ref, 1, 10)
	p.Investment.SetInt64(100)
	if limit := p.EarningsCap(4); limit.Int64() != 400 {
		t.Fatalf("expected cap 400, got %s", limit)
	}
	clone := p.Clone()
	clone.Investment.SetInt64(1)
	*clone.Referrer = common.HexToAddress("0x03")
	if p.Investment.Int64() != 100 || *p.Referrer != ref {
		t.Fatalf("clone shares state with original")
	}
	if p.Placed() {
		t.Fatalf("new participant should not be placed")
	}
}

func TestParseNames(t *testing.T) {
	if pool, err := ParsePoolName(" Global_Help "); err != nil || pool != GlobalHelpPool {
		t.Fatalf("unexpected pool %q err %v", pool, err)
	}
	if _, err := ParsePoolName("bonus"); err == nil {
		t.Fatalf("expected unknown pool error")
	}
	if rank, err := ParseRank("Silver_Star"); err != nil || rank != RankSilverStar {
		t.Fatalf("unexpected rank %v err %v", rank, err)
	}
	if _, err := ParseRank("gold"); err == nil {
		t.Fatalf("expected unknown rank error")
	}
}

func TestDistributionReport(t *testing.T) {
	a, b := common.HexToAddress("0x0a"), common.HexToAddress("0x0b")
	r := NewDistributionReport(a, big.NewInt(100))
	r.AddCategory(CategorySponsor, big.NewInt(40))
	r.AddCategory(CategoryHelp, big.NewInt(30))
	r.AddCategory(CategorySponsor, big.NewInt(30))
	r.AddPool(GlobalHelpPool, big.NewInt(30))
	r.AddPool(LeaderBonusPool, big.NewInt(0))
	r.Credits = append(r.Credits,
		Credit{Recipient: b, Category: CategorySponsor, Allocated: big.NewInt(40), Credited: big.NewInt(25), Capped: true},
		Credit{Recipient: a, Category: CategorySponsor, Allocated: big.NewInt(30), Credited: big.NewInt(30)},
		Credit{Recipient: b, Category: CategoryLevel, Level: 1, Allocated: big.NewInt(5), Credited: big.NewInt(5)},
	)

	if r.CategoryTotal().Int64() != 100 {
		t.Fatalf("unexpected category total %s", r.CategoryTotal())
	}
	if _, ok := r.Pools[LeaderBonusPool]; ok {
		t.Fatalf("zero pool bookings should be omitted")
	}
	if r.CreditedTo(b).Int64() != 30 {
		t.Fatalf("unexpected credited total %s", r.CreditedTo(b))
	}
	if got := r.Recipients(); len(got) != 2 || got[0] != b || got[1] != a {
		t.Fatalf("unexpected recipients %v", got)
	}
	if r.Credits[0].Forfeited().Int64() != 15 {
		t.Fatalf("unexpected forfeited %s", r.Credits[0].Forfeited())
	}
	if cats := r.SortedCategories(); len(cats) != 2 || cats[0] != CategoryHelp {
		t.Fatalf("unexpected categories %v", cats)
	}

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["amount"].(float64) != 100 {
		t.Fatalf("unexpected encoded amount %v", decoded["amount"])
	}
}
