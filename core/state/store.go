package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"leadfive/core/types"
	"leadfive/storage"
)

var (
	participantPrefix = []byte("ledger/participant/")
	nodePrefix        = []byte("ledger/node/")
	poolPrefix        = []byte("ledger/pool/")
	packagePrefix     = []byte("ledger/package/")
	metaKey           = []byte("ledger/meta")
)

type ledgerMeta struct {
	Version  uint64          `json:"version"`
	Paused   bool            `json:"paused"`
	Reinvest types.RateTable `json:"reinvest"`
}

func participantKey(id types.Address) []byte {
	return append(append([]byte(nil), participantPrefix...), id.Bytes()...)
}

func nodeKey(idx uint64) []byte {
	key := append([]byte(nil), nodePrefix...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], idx)
	return append(key, buf[:]...)
}

func poolKey(name types.PoolName) []byte {
	return append(append([]byte(nil), poolPrefix...), []byte(name)...)
}

func packageKey(tier types.TierID) []byte {
	key := append([]byte(nil), packagePrefix...)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(tier))
	return append(key, buf[:]...)
}

// Persist writes a changeset to db in one atomic batch. Settings the
// changeset leaves untouched are taken from l.
func Persist(db storage.Database, l *Ledger, cs *Changeset) error {
	if db == nil || cs == nil {
		return nil
	}
	batch := new(storage.Batch)
	for _, p := range cs.Participants {
		if err := putJSON(batch, participantKey(p.ID), p); err != nil {
			return err
		}
	}
	for _, n := range cs.Nodes {
		if err := putJSON(batch, nodeKey(n.Index), n); err != nil {
			return err
		}
	}
	for _, p := range cs.Pools {
		if err := putJSON(batch, poolKey(p.Name), p); err != nil {
			return err
		}
	}
	for _, p := range cs.Packages {
		if err := putJSON(batch, packageKey(p.Tier), p); err != nil {
			return err
		}
	}
	meta := ledgerMeta{Version: cs.Version, Paused: l.paused, Reinvest: l.reinvest}
	if cs.Paused != nil {
		meta.Paused = *cs.Paused
	}
	if cs.Reinvest != nil {
		meta.Reinvest = *cs.Reinvest
	}
	if err := putJSON(batch, metaKey, meta); err != nil {
		return err
	}
	return db.Write(batch)
}

// PersistAll writes the entire ledger. It is used to seed an empty store.
func PersistAll(db storage.Database, l *Ledger) error {
	cs := &Changeset{Version: l.version}
	for _, n := range l.nodes {
		cs.Nodes = append(cs.Nodes, n)
		if p, ok := l.participants[n.Owner]; ok {
			cs.Participants = append(cs.Participants, p)
		}
	}
	for _, name := range types.PoolNames {
		if p, ok := l.pools[name]; ok {
			cs.Pools = append(cs.Pools, p)
		}
	}
	for _, p := range l.packages {
		cs.Packages = append(cs.Packages, p)
	}
	return Persist(db, l, cs)
}

// Load rebuilds a ledger from db. The boolean is false when the store holds
// no ledger yet.
func Load(db storage.Database) (*Ledger, bool, error) {
	raw, err := db.Get(metaKey)
	if errors.Is(err, storage.ErrNotFound) {
		return NewLedger(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load meta: %w", err)
	}
	var meta ledgerMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false, fmt.Errorf("decode meta: %w", err)
	}
	cs := &Changeset{Version: meta.Version, Paused: &meta.Paused, Reinvest: &meta.Reinvest}
	if err := db.Iterate(nodePrefix, func(_, value []byte) error {
		n := new(types.MatrixNode)
		if err := json.Unmarshal(value, n); err != nil {
			return fmt.Errorf("decode node: %w", err)
		}
		cs.Nodes = append(cs.Nodes, n)
		return nil
	}); err != nil {
		return nil, false, err
	}
	if err := db.Iterate(participantPrefix, func(_, value []byte) error {
		p := new(types.Participant)
		if err := json.Unmarshal(value, p); err != nil {
			return fmt.Errorf("decode participant: %w", err)
		}
		cs.Participants = append(cs.Participants, p.Normalize())
		return nil
	}); err != nil {
		return nil, false, err
	}
	if err := db.Iterate(poolPrefix, func(_, value []byte) error {
		p := new(types.Pool)
		if err := json.Unmarshal(value, p); err != nil {
			return fmt.Errorf("decode pool: %w", err)
		}
		p.Balance = types.CopyAmount(p.Balance)
		cs.Pools = append(cs.Pools, p)
		return nil
	}); err != nil {
		return nil, false, err
	}
	if err := db.Iterate(packagePrefix, func(_, value []byte) error {
		p := new(types.Package)
		if err := json.Unmarshal(value, p); err != nil {
			return fmt.Errorf("decode package: %w", err)
		}
		cs.Packages = append(cs.Packages, p)
		return nil
	}); err != nil {
		return nil, false, err
	}
	for i, n := range cs.Nodes {
		if n.Index != uint64(i) {
			return nil, false, fmt.Errorf("node arena gap at index %d", i)
		}
	}
	ledger := NewLedger()
	ledger.Apply(cs)
	return ledger, true, nil
}

func putJSON(batch *storage.Batch, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	batch.Put(key, raw)
	return nil
}
