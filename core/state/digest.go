package state

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// GenealogyDigest hashes the placement arena. Two ledgers fed the same
// registration sequence produce the same digest.
func (l *Ledger) GenealogyDigest() [32]byte {
	h := blake3.New(32, nil)
	var buf [8]byte
	for _, n := range l.nodes {
		if n == nil {
			continue
		}
		binary.BigEndian.PutUint64(buf[:], n.Index)
		_, _ = h.Write(buf[:])
		_, _ = h.Write(n.Owner.Bytes())
		binary.BigEndian.PutUint64(buf[:], n.Parent)
		_, _ = h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], n.Depth)
		_, _ = h.Write(buf[:])
		for _, child := range n.Children {
			binary.BigEndian.PutUint64(buf[:], child)
			_, _ = h.Write(buf[:])
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
