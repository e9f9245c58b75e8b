package state

import (
	"bytes"
	"sort"

	"leadfive/core/types"
)

// Ledger is the in-memory arena holding every participant, matrix node, pool
// and package. It is owned by a single writer; all mutation goes through a
// Batch so that an operation either commits entirely or not at all.
type Ledger struct {
	participants map[types.Address]*types.Participant
	nodes        []*types.MatrixNode
	roots        []uint64
	pools        map[types.PoolName]*types.Pool
	packages     map[types.TierID]*types.Package
	reinvest     types.RateTable
	paused       bool
	version      uint64
}

// NewLedger returns an empty ledger with zeroed pools.
func NewLedger() *Ledger {
	l := &Ledger{
		participants: make(map[types.Address]*types.Participant),
		pools:        make(map[types.PoolName]*types.Pool),
		packages:     make(map[types.TierID]*types.Package),
		reinvest:     types.DefaultReinvestRates(),
	}
	for _, name := range types.PoolNames {
		l.pools[name] = &types.Pool{Name: name, Balance: types.CopyAmount(nil)}
	}
	return l
}

// Begin opens a staged batch against the ledger.
func (l *Ledger) Begin() *Batch {
	return newBatch(l)
}

// Version returns the number of committed batches.
func (l *Ledger) Version() uint64 { return l.version }

// Paused reports whether mutations are currently suspended.
func (l *Ledger) Paused() bool { return l.paused }

// Participant returns a copy of the participant record.
func (l *Ledger) Participant(id types.Address) (*types.Participant, bool) {
	p, ok := l.participants[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// PeekParticipant returns the stored participant without copying. Callers
// must not mutate the result.
func (l *Ledger) PeekParticipant(id types.Address) (*types.Participant, bool) {
	p, ok := l.participants[id]
	return p, ok
}

// PeekNode returns the stored node without copying.
func (l *Ledger) PeekNode(idx uint64) *types.MatrixNode {
	if idx >= uint64(len(l.nodes)) {
		return nil
	}
	return l.nodes[idx]
}

// ParticipantCount returns the number of registered participants.
func (l *Ledger) ParticipantCount() int { return len(l.participants) }

// Node returns a copy of the matrix node at idx.
func (l *Ledger) Node(idx uint64) (*types.MatrixNode, bool) {
	if idx >= uint64(len(l.nodes)) {
		return nil, false
	}
	return l.nodes[idx].Clone(), true
}

// NodeCount returns the size of the matrix arena.
func (l *Ledger) NodeCount() uint64 { return uint64(len(l.nodes)) }

// Roots returns the indices of every root node in creation order.
func (l *Ledger) Roots() []uint64 { return append([]uint64(nil), l.roots...) }

// Pool returns a copy of the named pool.
func (l *Ledger) Pool(name types.PoolName) (*types.Pool, bool) {
	p, ok := l.pools[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Pools returns copies of every pool in deterministic order.
func (l *Ledger) Pools() []*types.Pool {
	out := make([]*types.Pool, 0, len(l.pools))
	for _, name := range types.PoolNames {
		if p, ok := l.pools[name]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Package returns a copy of the package for tier.
func (l *Ledger) Package(tier types.TierID) (*types.Package, bool) {
	p, ok := l.packages[tier]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Packages returns copies of every package sorted by tier.
func (l *Ledger) Packages() []*types.Package {
	out := make([]*types.Package, 0, len(l.packages))
	for _, p := range l.packages {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// ReinvestRates returns the reinvestment rate table.
func (l *Ledger) ReinvestRates() types.RateTable { return l.reinvest.Clone() }

// Participants returns copies of every participant in registration order.
func (l *Ledger) Participants() []*types.Participant {
	out := make([]*types.Participant, 0, len(l.participants))
	for _, node := range l.nodes {
		if p, ok := l.participants[node.Owner]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Apply installs a changeset produced by a batch commit or loaded from
// storage.
func (l *Ledger) Apply(cs *Changeset) {
	if cs == nil {
		return
	}
	for _, p := range cs.Participants {
		l.participants[p.ID] = p.Clone().Normalize()
	}
	for _, n := range cs.Nodes {
		clone := n.Clone()
		for uint64(len(l.nodes)) <= clone.Index {
			l.nodes = append(l.nodes, nil)
		}
		if l.nodes[clone.Index] == nil && clone.IsRoot() {
			l.roots = append(l.roots, clone.Index)
		}
		l.nodes[clone.Index] = clone
	}
	for _, p := range cs.Pools {
		l.pools[p.Name] = p.Clone()
	}
	for _, p := range cs.Packages {
		l.packages[p.Tier] = p.Clone()
	}
	if cs.Reinvest != nil {
		l.reinvest = cs.Reinvest.Clone()
	}
	if cs.Paused != nil {
		l.paused = *cs.Paused
	}
	if cs.Version > l.version {
		l.version = cs.Version
	}
	sort.Slice(l.roots, func(i, j int) bool { return l.roots[i] < l.roots[j] })
}

func compareAddress(a, b types.Address) int {
	return bytes.Compare(a[:], b[:])
}
