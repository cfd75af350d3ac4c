package primitives

import (
	"io"

	"github.com/svost/novacoin/wire"
)

// Block is a full block: header, transaction list, and (for
// proof-of-stake blocks) a block signature.
type Block struct {
	BlockHeader
	Txs     []Tx
	BlockSig []byte
}

// IsProofOfStake reports whether this block carries a non-empty block
// signature, the marker of a proof-of-stake block in this chain.
func (b *Block) IsProofOfStake() bool {
	return len(b.BlockSig) > 0
}

// IsProofOfWork is the complement of IsProofOfStake.
func (b *Block) IsProofOfWork() bool {
	return !b.IsProofOfStake()
}

// Coinbase returns the block's first (mint) transaction.
func (b *Block) Coinbase() *Tx {
	if len(b.Txs) == 0 {
		return nil
	}
	return &b.Txs[0]
}

// Coinstake returns the block's second transaction (the coinstake),
// only meaningful when IsProofOfStake() is true.
func (b *Block) Coinstake() *Tx {
	if len(b.Txs) < 2 {
		return nil
	}
	return &b.Txs[1]
}

// MaxTransactionTime returns the maximum Time field across all of the
// block's transactions. Preserved for external consumers per spec
// §9 Open Question; nothing in this core's own rules depends on it.
func (b *Block) MaxTransactionTime() uint32 {
	var max uint32
	for i := range b.Txs {
		if b.Txs[i].Time > max {
			max = b.Txs[i].Time
		}
	}
	return max
}

// Size returns the full serialized size, including BlockSig.
func (b *Block) Size() int {
	n := HeaderSize
	n += wire.CompactSizeLen(uint64(len(b.Txs)))
	for i := range b.Txs {
		n += b.Txs[i].Size()
	}
	n += wire.CompactSizeLen(uint64(len(b.BlockSig))) + len(b.BlockSig)
	return n
}

// Deserialize reads a full block: header, tx list, block signature.
func (b *Block) Deserialize(r io.Reader) error {
	if err := b.BlockHeader.Deserialize(r); err != nil {
		return err
	}
	n, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	if n > wire.MaxVectorLen {
		return wire.ErrOverlong
	}
	b.Txs = make([]Tx, n)
	for i := range b.Txs {
		if err := b.Txs[i].Deserialize(r); err != nil {
			return err
		}
	}
	sig, err := wire.ReadVarBytes(r)
	if err != nil {
		return err
	}
	b.BlockSig = sig
	return nil
}

// DeserializeHeader reads only the 80-byte header, for header-only
// callers (e.g. headers-first sync, which this core does not itself
// implement but whose on-disk format it must remain compatible with).
func (b *Block) DeserializeHeader(r io.Reader) error {
	return b.BlockHeader.Deserialize(r)
}

// Serialize writes a full block: header, tx list, block signature.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.BlockHeader.Serialize(w); err != nil {
		return err
	}
	if err := wire.WriteCompactSize(w, uint64(len(b.Txs))); err != nil {
		return err
	}
	for i := range b.Txs {
		if err := b.Txs[i].Serialize(w); err != nil {
			return err
		}
	}
	return wire.WriteVarBytes(w, b.BlockSig)
}
