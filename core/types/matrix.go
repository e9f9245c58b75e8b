package types

// NoParent marks a root node.
const NoParent = ^uint64(0)

// MatrixNode is an arena slot in the placement tree. Parent and children are
// arena indices, never pointers.
type MatrixNode struct {
	Index    uint64   `json:"index"`
	Owner    Address  `json:"owner"`
	Parent   uint64   `json:"parent"`
	Children []uint64 `json:"children"`
	Depth    uint64   `json:"depth"`
	// Frontier is kept on roots: the first node under the root, in
	// breadth-first order, that may still have a free slot. Zero on a
	// root other than node 0 means the root itself.
	Frontier uint64   `json:"frontier,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n *MatrixNode) IsRoot() bool {
	return n != nil && n.Parent == NoParent
}

// Clone returns a deep copy of the node.
func (n *MatrixNode) Clone() *MatrixNode {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Children = append([]uint64(nil), n.Children...)
	return &clone
}
