package validator

import (
	"github.com/svost/novacoin/primitives"
	"github.com/svost/novacoin/wire"
)

// CheckTransaction runs the context-free per-transaction rules used by
// both CheckBlock and, independently, by any future mempool admission
// path. Grounded on the teacher's tx.go BinRead staged-validation
// style (reject as soon as a specific stage fails) generalized with a
// DoS score per stage.
func CheckTransaction(tx *primitives.Tx) *Error {
	if len(tx.Vin) == 0 {
		return reject(10, "tx has no inputs")
	}
	if len(tx.Vout) == 0 {
		return reject(10, "tx has no outputs")
	}

	total := int64(0)
	for i := range tx.Vout {
		out := &tx.Vout[i]
		if out.Value < 0 && !out.IsNull() {
			return reject(100, "tx output %d has negative value", i)
		}
		if out.Value > 0 && !wire.MoneyRange(out.Value) {
			return reject(100, "tx output %d value out of range", i)
		}
		total += out.Value
		if !wire.MoneyRange(total) {
			return reject(100, "tx output total out of range")
		}
	}

	seen := make(map[primitives.OutPoint]bool, len(tx.Vin))
	for i := range tx.Vin {
		in := &tx.Vin[i]
		if seen[in.PrevOut] {
			return reject(100, "tx spends the same outpoint twice")
		}
		seen[in.PrevOut] = true
		if tx.IsCoinBase() {
			continue
		}
		if in.PrevOut.IsNull() {
			return reject(10, "non-coinbase tx input %d has null prevout", i)
		}
	}

	if tx.IsCoinBase() {
		if n := len(tx.Vin[0].ScriptSig); n < 2 || n > 100 {
			return reject(100, "coinbase script_sig length out of range")
		}
	}

	return nil
}
