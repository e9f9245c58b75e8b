package state

import (
	"sort"

	"leadfive/core/events"
	"leadfive/core/types"
)

// Changeset lists every record touched by a committed batch. It is the unit
// handed to persistence after the in-memory commit succeeds.
type Changeset struct {
	Version      uint64
	Participants []*types.Participant
	Nodes        []*types.MatrixNode
	Pools        []*types.Pool
	Packages     []*types.Package
	Reinvest     *types.RateTable
	Paused       *bool
}

// Empty reports whether the changeset carries no records.
func (c *Changeset) Empty() bool {
	return c == nil || (len(c.Participants) == 0 && len(c.Nodes) == 0 && len(c.Pools) == 0 &&
		len(c.Packages) == 0 && c.Reinvest == nil && c.Paused == nil)
}

// Batch stages mutations against a Ledger. Records are copied on first
// mutable access so the base ledger is untouched until Commit.
type Batch struct {
	base         *Ledger
	participants map[types.Address]*types.Participant
	nodes        map[uint64]*types.MatrixNode
	appended     []*types.MatrixNode
	pools        map[types.PoolName]*types.Pool
	packages     map[types.TierID]*types.Package
	reinvest     *types.RateTable
	paused       *bool
	events       []events.Event
	closed       bool
}

func newBatch(base *Ledger) *Batch {
	return &Batch{
		base:         base,
		participants: make(map[types.Address]*types.Participant),
		nodes:        make(map[uint64]*types.MatrixNode),
		pools:        make(map[types.PoolName]*types.Pool),
		packages:     make(map[types.TierID]*types.Package),
	}
}

// Participant returns a mutable staged copy of the participant.
func (b *Batch) Participant(id types.Address) (*types.Participant, bool) {
	if p, ok := b.participants[id]; ok {
		return p, true
	}
	base, ok := b.base.participants[id]
	if !ok {
		return nil, false
	}
	staged := base.Clone().Normalize()
	b.participants[id] = staged
	return staged, true
}

// PeekParticipant returns the current participant without staging a copy.
// Callers must not mutate the result.
func (b *Batch) PeekParticipant(id types.Address) (*types.Participant, bool) {
	if p, ok := b.participants[id]; ok {
		return p, true
	}
	p, ok := b.base.participants[id]
	return p, ok
}

// HasParticipant reports whether id is registered.
func (b *Batch) HasParticipant(id types.Address) bool {
	_, ok := b.PeekParticipant(id)
	return ok
}

// InsertParticipant stages a brand new participant.
func (b *Batch) InsertParticipant(p *types.Participant) {
	b.participants[p.ID] = p.Normalize()
}

// EachParticipant visits every participant in registration (arena) order.
// The callback receives read-only records; it stops when fn returns false.
func (b *Batch) EachParticipant(fn func(*types.Participant) bool) {
	count := b.NodeCount()
	for idx := uint64(0); idx < count; idx++ {
		node := b.PeekNode(idx)
		if node == nil {
			continue
		}
		p, ok := b.PeekParticipant(node.Owner)
		if !ok {
			continue
		}
		if !fn(p) {
			return
		}
	}
}

// NodeCount returns the size of the staged arena.
func (b *Batch) NodeCount() uint64 {
	return uint64(len(b.base.nodes)) + uint64(len(b.appended))
}

// PeekNode returns the node at idx without staging a copy.
func (b *Batch) PeekNode(idx uint64) *types.MatrixNode {
	baseLen := uint64(len(b.base.nodes))
	if idx >= baseLen {
		off := idx - baseLen
		if off >= uint64(len(b.appended)) {
			return nil
		}
		return b.appended[off]
	}
	if n, ok := b.nodes[idx]; ok {
		return n
	}
	return b.base.nodes[idx]
}

// Node returns a mutable staged copy of the node at idx.
func (b *Batch) Node(idx uint64) *types.MatrixNode {
	baseLen := uint64(len(b.base.nodes))
	if idx >= baseLen {
		return b.PeekNode(idx)
	}
	if n, ok := b.nodes[idx]; ok {
		return n
	}
	base := b.base.nodes[idx]
	if base == nil {
		return nil
	}
	staged := base.Clone()
	b.nodes[idx] = staged
	return staged
}

// AppendNode adds a node to the arena and returns its index.
func (b *Batch) AppendNode(n *types.MatrixNode) uint64 {
	n.Index = b.NodeCount()
	b.appended = append(b.appended, n)
	return n.Index
}

// Roots returns every root node index including staged ones.
func (b *Batch) Roots() []uint64 {
	roots := append([]uint64(nil), b.base.roots...)
	for _, n := range b.appended {
		if n.IsRoot() {
			roots = append(roots, n.Index)
		}
	}
	return roots
}

// Pool returns a mutable staged copy of the pool.
func (b *Batch) Pool(name types.PoolName) (*types.Pool, bool) {
	if p, ok := b.pools[name]; ok {
		return p, true
	}
	base, ok := b.base.pools[name]
	if !ok {
		return nil, false
	}
	staged := base.Clone()
	b.pools[name] = staged
	return staged, true
}

// Package returns the current package definition for tier.
func (b *Batch) Package(tier types.TierID) (*types.Package, bool) {
	if p, ok := b.packages[tier]; ok {
		return p, true
	}
	p, ok := b.base.packages[tier]
	return p, ok
}

// PutPackage stages a package definition.
func (b *Batch) PutPackage(p *types.Package) {
	b.packages[p.Tier] = p.Clone()
}

// ReinvestRates returns the staged reinvestment rate table.
func (b *Batch) ReinvestRates() types.RateTable {
	if b.reinvest != nil {
		return *b.reinvest
	}
	return b.base.reinvest
}

// SetReinvestRates stages a new reinvestment rate table.
func (b *Batch) SetReinvestRates(t types.RateTable) {
	clone := t.Clone()
	b.reinvest = &clone
}

// Paused reports the staged pause flag.
func (b *Batch) Paused() bool {
	if b.paused != nil {
		return *b.paused
	}
	return b.base.paused
}

// SetPaused stages the pause flag.
func (b *Batch) SetPaused(paused bool) {
	b.paused = &paused
}

// AppendEvent stages an event. Events are only released to emitters once the
// batch commits.
func (b *Batch) AppendEvent(e events.Event) {
	if e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the staged events in emission order.
func (b *Batch) Events() []events.Event {
	return b.events
}

// Discard drops every staged mutation.
func (b *Batch) Discard() {
	b.closed = true
	b.participants = nil
	b.nodes = nil
	b.appended = nil
	b.pools = nil
	b.packages = nil
	b.events = nil
}

// Changeset assembles the staged mutations without applying them. It lets a
// caller persist the effects before they become visible.
func (b *Batch) Changeset() *Changeset {
	if b.closed {
		return &Changeset{Version: b.base.version}
	}
	cs := &Changeset{Version: b.base.version + 1}
	for _, p := range b.participants {
		cs.Participants = append(cs.Participants, p)
	}
	sort.Slice(cs.Participants, func(i, j int) bool {
		return compareAddress(cs.Participants[i].ID, cs.Participants[j].ID) < 0
	})
	for _, n := range b.nodes {
		cs.Nodes = append(cs.Nodes, n)
	}
	cs.Nodes = append(cs.Nodes, b.appended...)
	sort.Slice(cs.Nodes, func(i, j int) bool { return cs.Nodes[i].Index < cs.Nodes[j].Index })
	for _, name := range types.PoolNames {
		if p, ok := b.pools[name]; ok {
			cs.Pools = append(cs.Pools, p)
		}
	}
	for _, p := range b.packages {
		cs.Packages = append(cs.Packages, p)
	}
	sort.Slice(cs.Packages, func(i, j int) bool { return cs.Packages[i].Tier < cs.Packages[j].Tier })
	cs.Reinvest = b.reinvest
	cs.Paused = b.paused
	return cs
}

// Commit applies the staged mutations to the base ledger and returns the
// changeset. A batch can be committed at most once.
func (b *Batch) Commit() *Changeset {
	if b.closed {
		return &Changeset{Version: b.base.version}
	}
	cs := b.Changeset()
	b.closed = true
	b.base.Apply(cs)
	return cs
}
