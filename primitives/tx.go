package primitives

import (
	"bytes"
	"io"

	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/wire"
)

// CurrentVersion is the transaction/block version this core produces
// and accepts without a deprecation warning.
const CurrentVersion = 6

// Tx is a transaction. Unlike pure-Bitcoin transactions, it carries a
// Time field (ppcoin-lineage addition), used in coinstake timestamp
// checks and in final-ness evaluation.
type Tx struct {
	Version  int32
	Time     uint32
	Vin      []TxIn
	Vout     []TxOut
	LockTime uint32
}

// Hash returns the double-SHA-256 of the transaction's canonical
// serialization.
func (tx *Tx) Hash() chainhash.Hash256 {
	var buf bytes.Buffer
	// A Hash() that fails to serialize indicates a programmer error
	// (in-memory structures are always well-formed), not a runtime
	// condition callers can usefully react to.
	if err := tx.Serialize(&buf); err != nil {
		panic(err)
	}
	return chainhash.DoubleSHA256(buf.Bytes())
}

// IsCoinBase reports whether this is a coinbase transaction: exactly
// one input, whose prevout is null.
func (tx *Tx) IsCoinBase() bool {
	return len(tx.Vin) == 1 && tx.Vin[0].PrevOut.IsNull()
}

// IsCoinStake reports whether this is a coinstake transaction: at
// least one input, at least two outputs, and the first output empty.
func (tx *Tx) IsCoinStake() bool {
	return len(tx.Vin) >= 1 && len(tx.Vout) >= 2 && tx.Vout[0].IsEmpty()
}

// Size returns the serialized size in bytes.
func (tx *Tx) Size() int {
	n := 4 + 4 // version, time
	n += wire.CompactSizeLen(uint64(len(tx.Vin)))
	for i := range tx.Vin {
		n += tx.Vin[i].Size()
	}
	n += wire.CompactSizeLen(uint64(len(tx.Vout)))
	for i := range tx.Vout {
		n += tx.Vout[i].Size()
	}
	n += 4 // locktime
	return n
}

func (tx *Tx) Deserialize(r io.Reader) error {
	v, err := wire.ReadInt32LE(r)
	if err != nil {
		return err
	}
	tx.Version = v

	t, err := wire.ReadUint32LE(r)
	if err != nil {
		return err
	}
	tx.Time = t

	nIn, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	if nIn > wire.MaxVectorLen {
		return wire.ErrOverlong
	}
	tx.Vin = make([]TxIn, nIn)
	for i := range tx.Vin {
		if err := tx.Vin[i].Deserialize(r); err != nil {
			return err
		}
	}

	nOut, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	if nOut > wire.MaxVectorLen {
		return wire.ErrOverlong
	}
	tx.Vout = make([]TxOut, nOut)
	for i := range tx.Vout {
		if err := tx.Vout[i].Deserialize(r); err != nil {
			return err
		}
	}

	lt, err := wire.ReadUint32LE(r)
	if err != nil {
		return err
	}
	tx.LockTime = lt
	return nil
}

func (tx *Tx) Serialize(w io.Writer) error {
	if err := wire.WriteInt32LE(w, tx.Version); err != nil {
		return err
	}
	if err := wire.WriteUint32LE(w, tx.Time); err != nil {
		return err
	}
	if err := wire.WriteCompactSize(w, uint64(len(tx.Vin))); err != nil {
		return err
	}
	for i := range tx.Vin {
		if err := tx.Vin[i].Serialize(w); err != nil {
			return err
		}
	}
	if err := wire.WriteCompactSize(w, uint64(len(tx.Vout))); err != nil {
		return err
	}
	for i := range tx.Vout {
		if err := tx.Vout[i].Serialize(w); err != nil {
			return err
		}
	}
	return wire.WriteUint32LE(w, tx.LockTime)
}
