package primitives

import (
	"io"
	"math"

	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/wire"
)

// NullIndex is the sentinel output index marking a coinbase input's
// prevout, following Bitcoin-lineage convention.
const NullIndex = math.MaxUint32

// OutPoint identifies a transaction output: (tx hash, output index).
type OutPoint struct {
	Hash  chainhash.Hash256
	Index uint32
}

// IsNull reports whether this is the coinbase sentinel {0, 0xffffffff}.
func (o OutPoint) IsNull() bool {
	return o.Hash.IsZero() && o.Index == NullIndex
}

// Less gives OutPoint a total order: by Hash, then by Index.
func (o OutPoint) Less(other OutPoint) bool {
	if o.Hash != other.Hash {
		return o.Hash.Less(other.Hash)
	}
	return o.Index < other.Index
}

func (o *OutPoint) Deserialize(r io.Reader) error {
	if _, err := io.ReadFull(r, o.Hash[:]); err != nil {
		return wire.ErrTruncated
	}
	idx, err := wire.ReadUint32LE(r)
	if err != nil {
		return err
	}
	o.Index = idx
	return nil
}

func (o OutPoint) Serialize(w io.Writer) error {
	if _, err := w.Write(o.Hash[:]); err != nil {
		return err
	}
	return wire.WriteUint32LE(w, o.Index)
}
