package primitives

import (
	"io"
	"math"

	"github.com/svost/novacoin/wire"
)

// FinalSequence marks a TxIn as final (not subject to replacement),
// per Bitcoin-lineage convention.
const FinalSequence = math.MaxUint32

// TxIn is one input of a transaction.
type TxIn struct {
	PrevOut   OutPoint
	ScriptSig []byte
	Sequence  uint32
}

// IsFinal reports whether this input's sequence number marks it final.
func (in *TxIn) IsFinal() bool {
	return in.Sequence == FinalSequence
}

func (in *TxIn) Size() int {
	return 32 + 4 + wire.CompactSizeLen(uint64(len(in.ScriptSig))) + len(in.ScriptSig) + 4
}

func (in *TxIn) Deserialize(r io.Reader) error {
	if err := in.PrevOut.Deserialize(r); err != nil {
		return err
	}
	sig, err := wire.ReadVarBytes(r)
	if err != nil {
		return err
	}
	in.ScriptSig = sig
	seq, err := wire.ReadUint32LE(r)
	if err != nil {
		return err
	}
	in.Sequence = seq
	return nil
}

func (in *TxIn) Serialize(w io.Writer) error {
	if err := in.PrevOut.Serialize(w); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, in.ScriptSig); err != nil {
		return err
	}
	return wire.WriteUint32LE(w, in.Sequence)
}
