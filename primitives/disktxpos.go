package primitives

import (
	"io"
	"math"

	"github.com/svost/novacoin/wire"
)

// DiskTxPos locates a transaction on disk: which block file, the
// block's byte offset within that file, and the tx's byte offset
// within the block.
type DiskTxPos struct {
	FileID      uint32
	BlockOffset uint32
	TxOffset    uint32
}

// IsNull reports whether this is the null (FileID == MaxUint32) position.
func (p DiskTxPos) IsNull() bool {
	return p.FileID == math.MaxUint32
}

// MempoolSentinel is the reference implementation's magic value for
// "this tx is known but lives only in the mempool, not on disk yet".
// Nothing in this core writes it; chainselect treats a TxIndex at this
// position as not on disk when resolving transactions by hash, and
// same-block spends use the block's real positions instead. Carried here verbatim for on-disk/interop compatibility per spec §9
// Open Question, rather than switching to an explicit sum type.
var MempoolSentinel = DiskTxPos{FileID: 1, BlockOffset: 1, TxOffset: 1}

// IsMempoolSentinel reports whether p is the mempool sentinel value.
func (p DiskTxPos) IsMempoolSentinel() bool {
	return p == MempoolSentinel
}

func (p *DiskTxPos) Deserialize(r io.Reader) error {
	var err error
	if p.FileID, err = wire.ReadUint32LE(r); err != nil {
		return err
	}
	if p.BlockOffset, err = wire.ReadUint32LE(r); err != nil {
		return err
	}
	if p.TxOffset, err = wire.ReadUint32LE(r); err != nil {
		return err
	}
	return nil
}

func (p DiskTxPos) Serialize(w io.Writer) error {
	if err := wire.WriteUint32LE(w, p.FileID); err != nil {
		return err
	}
	if err := wire.WriteUint32LE(w, p.BlockOffset); err != nil {
		return err
	}
	return wire.WriteUint32LE(w, p.TxOffset)
}

// NullDiskTxPos is the null sentinel.
var NullDiskTxPos = DiskTxPos{FileID: math.MaxUint32}

// TxIndex is the durable record the index store keeps per transaction
// hash: where it lives on disk, and which of its outputs are spent.
type TxIndex struct {
	Pos   DiskTxPos
	Spent []DiskTxPos
}

// NewTxIndex builds a fresh TxIndex for a transaction with nOut
// outputs, all initially unspent.
func NewTxIndex(pos DiskTxPos, nOut int) TxIndex {
	spent := make([]DiskTxPos, nOut)
	for i := range spent {
		spent[i] = NullDiskTxPos
	}
	return TxIndex{Pos: pos, Spent: spent}
}

// IsSpent reports whether output i has been spent.
func (ti *TxIndex) IsSpent(i int) bool {
	return i < len(ti.Spent) && !ti.Spent[i].IsNull()
}

func (ti *TxIndex) Deserialize(r io.Reader) error {
	if err := ti.Pos.Deserialize(r); err != nil {
		return err
	}
	n, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	if n > wire.MaxVectorLen {
		return wire.ErrOverlong
	}
	ti.Spent = make([]DiskTxPos, n)
	for i := range ti.Spent {
		if err := ti.Spent[i].Deserialize(r); err != nil {
			return err
		}
	}
	return nil
}

func (ti *TxIndex) Serialize(w io.Writer) error {
	if err := ti.Pos.Serialize(w); err != nil {
		return err
	}
	if err := wire.WriteCompactSize(w, uint64(len(ti.Spent))); err != nil {
		return err
	}
	for i := range ti.Spent {
		if err := ti.Spent[i].Serialize(w); err != nil {
			return err
		}
	}
	return nil
}
