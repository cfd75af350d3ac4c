package primitives

import (
	"bytes"
	"io"

	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/wire"
)

// HeaderSize is the fixed serialized size of a BlockHeader.
const HeaderSize = 4 + 32 + 32 + 4 + 4 + 4

// BlockHeader is the 80-byte fixed header every block carries.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash256
	MerkleRoot chainhash.Hash256
	Time       uint32
	Bits       uint32
	Nonce      uint32
}

// Hash computes the block's proof-of-work hash: scrypt of the
// serialized header. This is distinct from tx/merkle hashing, which
// uses double-SHA-256.
func (h *BlockHeader) Hash() (chainhash.Hash256, error) {
	var buf bytes.Buffer
	if err := h.Serialize(&buf); err != nil {
		return chainhash.Hash256{}, err
	}
	return chainhash.ScryptHeaderHash(buf.Bytes())
}

func (h *BlockHeader) Deserialize(r io.Reader) error {
	v, err := wire.ReadInt32LE(r)
	if err != nil {
		return err
	}
	h.Version = v
	if _, err := io.ReadFull(r, h.PrevBlock[:]); err != nil {
		return wire.ErrTruncated
	}
	if _, err := io.ReadFull(r, h.MerkleRoot[:]); err != nil {
		return wire.ErrTruncated
	}
	if h.Time, err = wire.ReadUint32LE(r); err != nil {
		return err
	}
	if h.Bits, err = wire.ReadUint32LE(r); err != nil {
		return err
	}
	if h.Nonce, err = wire.ReadUint32LE(r); err != nil {
		return err
	}
	return nil
}

func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := wire.WriteInt32LE(w, h.Version); err != nil {
		return err
	}
	if _, err := w.Write(h.PrevBlock[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.MerkleRoot[:]); err != nil {
		return err
	}
	if err := wire.WriteUint32LE(w, h.Time); err != nil {
		return err
	}
	if err := wire.WriteUint32LE(w, h.Bits); err != nil {
		return err
	}
	return wire.WriteUint32LE(w, h.Nonce)
}
