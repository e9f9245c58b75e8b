package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"leadfive/core/types"
)

type recorder struct{ got []string }

func (r *recorder) Emit(e Event) { r.got = append(r.got, e.EventType()) }

func TestFanoutDeliversInOrder(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	f := &Fanout{}
	f.Add(first)
	f.Add(nil)
	f.Add(second)
	f.Emit(LedgerPaused{Paused: true})
	f.Emit(ParticipantStatus{Active: false})
	for _, r := range []*recorder{first, second} {
		if len(r.got) != 2 || r.got[0] != TypeLedgerPaused || r.got[1] != TypeParticipantStatus {
			t.Fatalf("unexpected delivery %v", r.got)
		}
	}
	NoopEmitter{}.Emit(LedgerPaused{})
}

func TestRegistrationAttributes(t *testing.T) {
	id := common.HexToAddress("0x00000000000000000000000000000000000000AB")
	root := ParticipantRegistered{ID: id, Tier: 2, Position: 0, Parent: types.NoParent}.Event()
	if _, ok := root.Attributes["parent"]; ok {
		t.Fatalf("root registration should omit parent")
	}
	if _, ok := root.Attributes["referrer"]; ok {
		t.Fatalf("root registration should omit referrer")
	}
	if root.Attr("id") != "0x00000000000000000000000000000000000000ab" {
		t.Fatalf("addresses should render lowercase, got %s", root.Attr("id"))
	}

	ref := common.HexToAddress("0x01")
	child := ParticipantRegistered{ID: id, Referrer: &ref, Tier: 1, Position: 3, Parent: 1, Depth: 2}.Event()
	if child.Attr("parent") != "1" || child.Attr("depth") != "2" || child.Attr("referrer") == "" {
		t.Fatalf("unexpected child attributes %v", child.Attributes)
	}
}

func TestAmountAttributes(t *testing.T) {
	evt := Contribution{Payer: common.HexToAddress("0x02"), Tier: 1, Amount: big.NewInt(30)}.Event()
	if evt.Attr("amount") != "30" || evt.Attr("forfeited") != "0" || evt.Attr("reinvest") != "false" {
		t.Fatalf("unexpected contribution attributes %v", evt.Attributes)
	}
	credit := CommissionCredited{Category: types.CategoryLevel, Level: 3, Amount: big.NewInt(5)}.Event()
	if credit.Attr("level") != "3" || credit.Attr("category") != "level" {
		t.Fatalf("unexpected credit attributes %v", credit.Attributes)
	}
	forfeit := CreditForfeited{Category: types.CategoryHelp, Amount: big.NewInt(9), Reason: "no_recipient"}.Event()
	if _, ok := forfeit.Attributes["recipient"]; ok {
		t.Fatalf("forfeit without recipient should omit it")
	}
	if forfeit.Attr("redirected") != "false" {
		t.Fatalf("unexpected redirected flag")
	}
}
