package matrix

import "fmt"

const (
	// DefaultWidth is the forced binary matrix used by the plan.
	DefaultWidth = 2
	// DefaultMaxDepth bounds ancestor walks and the global upline reach.
	DefaultMaxDepth = 30
)

// Params configures the placement tree.
type Params struct {
	// Width is the number of child slots per node.
	Width uint64
	// MaxDepth bounds team-size propagation and upline lookups.
	MaxDepth uint64
	// SpilloverDepth limits how deep below the referrer a free slot is
	// searched for before falling back to the global frontier. Zero means the
	// referrer's whole subtree is searched.
	SpilloverDepth uint64
}

// DefaultParams returns the binary matrix configuration.
func DefaultParams() Params {
	return Params{Width: DefaultWidth, MaxDepth: DefaultMaxDepth}
}

// Validate ensures the parameters describe a usable tree.
func (p Params) Validate() error {
	if p.Width == 0 {
		return fmt.Errorf("matrix width must be positive")
	}
	if p.MaxDepth == 0 {
		return fmt.Errorf("matrix max depth must be positive")
	}
	return nil
}
