package primitives

import (
	"io"

	"github.com/svost/novacoin/wire"
)

// NullValue is the sentinel TxOut.Value meaning "null" per spec §3.
const NullValue = -1

// TxOut is one output of a transaction.
type TxOut struct {
	Value        int64
	ScriptPubKey []byte
}

// IsNull reports whether this output carries the null sentinel value.
func (out *TxOut) IsNull() bool {
	return out.Value == NullValue
}

// IsEmpty reports whether this is the empty output used as the first
// output of a coinstake transaction: zero value, empty script.
func (out *TxOut) IsEmpty() bool {
	return out.Value == 0 && len(out.ScriptPubKey) == 0
}

func (out *TxOut) Size() int {
	return 8 + wire.CompactSizeLen(uint64(len(out.ScriptPubKey))) + len(out.ScriptPubKey)
}

func (out *TxOut) Deserialize(r io.Reader) error {
	v, err := wire.ReadInt64LE(r)
	if err != nil {
		return err
	}
	out.Value = v
	spk, err := wire.ReadVarBytes(r)
	if err != nil {
		return err
	}
	out.ScriptPubKey = spk
	return nil
}

func (out *TxOut) Serialize(w io.Writer) error {
	if err := wire.WriteInt64LE(w, out.Value); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, out.ScriptPubKey)
}
