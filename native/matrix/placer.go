package matrix

import (
	ledgererrors "leadfive/core/errors"
	"leadfive/core/types"
)

// View is the read side of the ledger arena.
type View interface {
	PeekParticipant(id types.Address) (*types.Participant, bool)
	PeekNode(idx uint64) *types.MatrixNode
}

// State is the mutable arena the placer writes into.
type State interface {
	View
	Participant(id types.Address) (*types.Participant, bool)
	Node(idx uint64) *types.MatrixNode
	NodeCount() uint64
	AppendNode(n *types.MatrixNode) uint64
	Roots() []uint64
}

// Placer assigns matrix positions breadth-first.
type Placer struct {
	params Params
}

// NewPlacer constructs a placer. Invalid parameters fall back to defaults.
func NewPlacer(params Params) *Placer {
	if params.Validate() != nil {
		params = DefaultParams()
	}
	return &Placer{params: params}
}

// Params returns the active configuration.
func (pl *Placer) Params() Params { return pl.params }

// Place assigns p a node. A participant without a referrer becomes a root; a
// second root is rejected unless asRoot designates it explicitly.
func (pl *Placer) Place(st State, p *types.Participant, asRoot bool) (*types.MatrixNode, error) {
	if p == nil {
		return nil, ledgererrors.ErrInvariantViolation.With("participant", "nil participant")
	}
	if p.Placed() {
		return nil, ledgererrors.ErrInvariantViolation.With("position", "participant %s already placed", p.ID.Hex())
	}
	if p.Referrer == nil {
		if len(st.Roots()) > 0 && !asRoot {
			return nil, ledgererrors.ErrRootAlreadyExists.With("referrer", "")
		}
		node := &types.MatrixNode{Owner: p.ID, Parent: types.NoParent}
		idx := st.AppendNode(node)
		p.Position = idx
		p.Depth = 0
		return node, nil
	}

	ref, ok := st.PeekParticipant(*p.Referrer)
	if !ok || !ref.Placed() {
		return nil, ledgererrors.ErrInvalidReferrer.With("referrer", "referrer %s has no matrix position", p.Referrer.Hex())
	}
	var (
		parentIdx uint64
		found     bool
	)
	// From a root the subtree search and the global frontier coincide.
	if refNode := st.PeekNode(ref.Position); refNode.IsRoot() {
		parentIdx, found = pl.frontierSlot(st, ref.Position)
	} else {
		parentIdx, found = pl.findSlot(st, ref.Position, pl.params.SpilloverDepth)
		if !found {
			parentIdx, found = pl.frontierSlot(st, rootOf(st, ref.Position))
		}
	}
	if !found {
		return nil, ledgererrors.ErrInvariantViolation.With("matrix", "no free slot reachable from %d", ref.Position)
	}
	parent := st.Node(parentIdx)
	node := &types.MatrixNode{Owner: p.ID, Parent: parentIdx, Depth: parent.Depth + 1}
	idx := st.AppendNode(node)
	parent.Children = append(parent.Children, idx)
	p.Position = idx
	p.Depth = node.Depth

	for _, ancestor := range Ancestors(st, idx, pl.params.MaxDepth) {
		if owner, ok := st.Participant(ancestor); ok {
			owner.TeamSize++
		}
	}
	return node, nil
}

// findSlot runs a breadth-first search from start and returns the first node
// with a free child slot. Children are visited in slot order so no node gets
// a child while an earlier node at the same or shallower level is open.
func (pl *Placer) findSlot(v View, start uint64, limit uint64) (uint64, bool) {
	type item struct {
		idx   uint64
		depth uint64
	}
	queue := []item{{idx: start}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := v.PeekNode(cur.idx)
		if node == nil {
			continue
		}
		if uint64(len(node.Children)) < pl.params.Width {
			return cur.idx, true
		}
		if limit > 0 && cur.depth >= limit {
			continue
		}
		for _, child := range node.Children {
			queue = append(queue, item{idx: child, depth: cur.depth + 1})
		}
	}
	return 0, false
}

// frontierSlot returns the first open node under root in breadth-first
// order. Nodes ahead of the stored frontier only ever gain children, and new
// nodes always land behind it, so the walk resumes from there instead of
// rescanning filled levels. The frontier lives on the root node and is staged
// with the rest of the batch.
func (pl *Placer) frontierSlot(st State, root uint64) (uint64, bool) {
	rootNode := st.PeekNode(root)
	if rootNode == nil || !rootNode.IsRoot() {
		return 0, false
	}
	cur := rootNode.Frontier
	if cur == 0 {
		cur = root
	}
	for {
		node := st.PeekNode(cur)
		if node == nil {
			return 0, false
		}
		if uint64(len(node.Children)) < pl.params.Width {
			break
		}
		next, ok := nextInBreadth(st, root, cur)
		if !ok {
			return 0, false
		}
		cur = next
	}
	if rootNode.Frontier != cur {
		st.Node(root).Frontier = cur
	}
	return cur, true
}

// nextInBreadth returns the node following idx in breadth-first order under
// root.
func nextInBreadth(v View, root, idx uint64) (uint64, bool) {
	node := v.PeekNode(idx)
	rootNode := v.PeekNode(root)
	if node == nil || rootNode == nil {
		return 0, false
	}
	if next, ok := nextInLevel(v, idx); ok {
		return next, true
	}
	n, ok := levelStart(v, root, node.Depth-rootNode.Depth)
	for ok {
		if cur := v.PeekNode(n); cur != nil && len(cur.Children) > 0 {
			return cur.Children[0], true
		}
		n, ok = nextInLevel(v, n)
	}
	return 0, false
}

// nextInLevel returns the next node at the same depth as idx within its tree.
func nextInLevel(v View, idx uint64) (uint64, bool) {
	node := v.PeekNode(idx)
	if node == nil || node.IsRoot() {
		return 0, false
	}
	parent := v.PeekNode(node.Parent)
	if parent == nil {
		return 0, false
	}
	for i, child := range parent.Children {
		if child == idx && i+1 < len(parent.Children) {
			return parent.Children[i+1], true
		}
	}
	for p, ok := nextInLevel(v, node.Parent); ok; p, ok = nextInLevel(v, p) {
		if pn := v.PeekNode(p); pn != nil && len(pn.Children) > 0 {
			return pn.Children[0], true
		}
	}
	return 0, false
}

// levelStart returns the first node depth levels below root.
func levelStart(v View, root, depth uint64) (uint64, bool) {
	n := root
	for level := uint64(0); level < depth; level++ {
		for {
			node := v.PeekNode(n)
			if node == nil {
				return 0, false
			}
			if len(node.Children) > 0 {
				n = node.Children[0]
				break
			}
			next, ok := nextInLevel(v, n)
			if !ok {
				return 0, false
			}
			n = next
		}
	}
	return n, true
}

func rootOf(v View, idx uint64) uint64 {
	for {
		node := v.PeekNode(idx)
		if node == nil || node.IsRoot() {
			return idx
		}
		idx = node.Parent
	}
}

// Ancestors returns up to limit ancestor owners of the node at idx, nearest
// first.
func Ancestors(v View, idx uint64, limit uint64) []types.Address {
	out := make([]types.Address, 0, limit)
	node := v.PeekNode(idx)
	for node != nil && !node.IsRoot() && uint64(len(out)) < limit {
		parent := v.PeekNode(node.Parent)
		if parent == nil {
			break
		}
		out = append(out, parent.Owner)
		node = parent
	}
	return out
}
