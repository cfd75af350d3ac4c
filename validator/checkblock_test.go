package validator

import (
	"testing"
	"time"

	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/merkle"
	"github.com/svost/novacoin/params"
	"github.com/svost/novacoin/primitives"
)

func powBlock() *primitives.Block {
	b := &primitives.Block{}
	b.Version = primitives.CurrentVersion
	b.Time = uint32(time.Now().Unix())
	b.Bits = 0x207fffff // easy regtest-style target
	coinbase := primitives.Tx{
		Version: primitives.CurrentVersion,
		Time:    b.Time,
		Vin: []primitives.TxIn{
			{PrevOut: primitives.OutPoint{Index: primitives.NullIndex}, ScriptSig: []byte{0x00, 0x00}, Sequence: primitives.FinalSequence},
		},
		Vout: []primitives.TxOut{
			{Value: 5000000000, ScriptPubKey: []byte{0x51}},
		},
	}
	b.Txs = []primitives.Tx{coinbase}
	hashes := make([]chHash, len(b.Txs))
	for i := range b.Txs {
		hashes[i] = b.Txs[i].Hash()
	}
	b.MerkleRoot = merkle.BuildMerkleTree(hashes)
	return b
}

type chHash = chainhash.Hash256

func TestCheckBlockAcceptsValidPoWBlock(t *testing.T) {
	b := powBlock()
	flags := CheckFlags{CheckMerkle: true}
	if err := CheckBlock(b, flags, params.Mainnet(), time.Now()); err != nil {
		t.Fatalf("expected valid block, got %v", err)
	}
}

func TestCheckBlockRejectsNonCoinbaseFirstTx(t *testing.T) {
	b := powBlock()
	b.Txs[0].Vin[0].PrevOut.Index = 0 // no longer null, not a coinbase
	flags := CheckFlags{}
	err := CheckBlock(b, flags, params.Mainnet(), time.Now())
	if err == nil {
		t.Fatalf("expected rejection")
	}
}

func TestCheckBlockRejectsMerkleMismatch(t *testing.T) {
	b := powBlock()
	b.MerkleRoot[0] ^= 0xff
	flags := CheckFlags{CheckMerkle: true}
	err := CheckBlock(b, flags, params.Mainnet(), time.Now())
	if err == nil {
		t.Fatalf("expected merkle mismatch rejection")
	}
}

func TestCheckBlockRejectsDuplicateTxHash(t *testing.T) {
	b := powBlock()
	b.Txs = append(b.Txs, b.Txs[0])
	flags := CheckFlags{}
	err := CheckBlock(b, flags, params.Mainnet(), time.Now())
	if err == nil {
		t.Fatalf("expected duplicate tx hash rejection")
	}
}

func TestCheckTransactionRejectsEmptyInputsOutputs(t *testing.T) {
	tx := &primitives.Tx{}
	if err := CheckTransaction(tx); err == nil {
		t.Fatalf("expected rejection for tx with no inputs/outputs")
	}
}

func TestCheckTransactionRejectsOutOfRangeValue(t *testing.T) {
	tx := &primitives.Tx{
		Vin:  []primitives.TxIn{{}},
		Vout: []primitives.TxOut{{Value: wire_MaxMoneyPlusOne()}},
	}
	if err := CheckTransaction(tx); err == nil {
		t.Fatalf("expected rejection for out-of-range value")
	}
}

func wire_MaxMoneyPlusOne() int64 {
	return 2_000_000_000*100_000_000 + 1
}
