package matrix

import (
	"leadfive/core/types"
)

// Genealogy describes a participant's neighbourhood in the placement tree.
type Genealogy struct {
	ID       types.Address     `json:"id"`
	Position uint64            `json:"position"`
	Depth    uint64            `json:"depth"`
	Parent   *types.Address    `json:"parent,omitempty"`
	Upline   []types.Address   `json:"upline"`
	Levels   [][]types.Address `json:"levels"`
	TeamSize uint64            `json:"teamSize"`
}

// BuildGenealogy returns the upline (nearest first, bounded by uplineLimit)
// and downline levels (breadth-first, bounded by levelLimit) for id.
func BuildGenealogy(v View, id types.Address, uplineLimit, levelLimit uint64) (*Genealogy, bool) {
	p, ok := v.PeekParticipant(id)
	if !ok || !p.Placed() {
		return nil, false
	}
	node := v.PeekNode(p.Position)
	if node == nil {
		return nil, false
	}
	g := &Genealogy{
		ID:       id,
		Position: p.Position,
		Depth:    node.Depth,
		Upline:   Ancestors(v, p.Position, uplineLimit),
		Levels:   [][]types.Address{},
		TeamSize: p.TeamSize,
	}
	if !node.IsRoot() {
		if parent := v.PeekNode(node.Parent); parent != nil {
			owner := parent.Owner
			g.Parent = &owner
		}
	}
	frontier := append([]uint64(nil), node.Children...)
	for level := uint64(0); level < levelLimit && len(frontier) > 0; level++ {
		owners := make([]types.Address, 0, len(frontier))
		next := make([]uint64, 0, len(frontier)*2)
		for _, idx := range frontier {
			child := v.PeekNode(idx)
			if child == nil {
				continue
			}
			owners = append(owners, child.Owner)
			next = append(next, child.Children...)
		}
		g.Levels = append(g.Levels, owners)
		frontier = next
	}
	return g, true
}
