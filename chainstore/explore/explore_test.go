package explore

import (
	"os"
	"testing"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/merkle"
	"github.com/svost/novacoin/primitives"
)

// testDSN returns a Postgres connection string from the environment and
// skips the test when none is configured; there is no embedded/in-memory
// postgres driver in this stack, so exercising Sink against a real
// server is opt-in rather than run by default.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("NOVACOIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOVACOIN_TEST_POSTGRES_DSN not set, skipping explore integration test")
	}
	return dsn
}

func testBlockAndNode(height int32, tag byte) (*primitives.Block, *blockindex.Node) {
	b := &primitives.Block{}
	b.Version = primitives.CurrentVersion
	b.Time = 1_600_000_000 + uint32(height)
	b.Bits = 0x1d00ffff
	b.Nonce = uint32(tag)
	coinbase := primitives.Tx{
		Version: primitives.CurrentVersion,
		Time:    b.Time,
		Vin: []primitives.TxIn{
			{PrevOut: primitives.OutPoint{Index: primitives.NullIndex}, ScriptSig: []byte{tag}, Sequence: primitives.FinalSequence},
		},
		Vout: []primitives.TxOut{
			{Value: 10_000_000_00, ScriptPubKey: []byte{0x51}},
		},
	}
	b.Txs = []primitives.Tx{coinbase}
	hashes := make([]chainhash256, len(b.Txs))
	for i := range b.Txs {
		hashes[i] = b.Txs[i].Hash()
	}
	b.MerkleRoot = merkle.BuildMerkleTree(hashes)

	hash, err := b.BlockHeader.Hash()
	if err != nil {
		panic(err)
	}
	node := &blockindex.Node{
		Hash:        hash,
		Header:      b.BlockHeader,
		Height:      height,
		Mint:        1_000_000_000,
		MoneySupply: 1_000_000_000 * int64(height+1),
	}
	return b, node
}

type chainhash256 = chainhash.Hash256

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := Open(testDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		s.db.Exec(`DROP TABLE IF EXISTS blocks`)
		s.Close()
	})
	return s
}

func TestOnBlockConnectedRecordsBlock(t *testing.T) {
	s := openTestSink(t)
	block, node := testBlockAndNode(0, 0xaa)

	s.OnBlockConnected(block, node)

	height, err := s.SelectMaxHeight()
	if err != nil {
		t.Fatalf("SelectMaxHeight: %v", err)
	}
	if height != 0 {
		t.Fatalf("expected max height 0, got %d", height)
	}

	rows, err := s.SelectBlocksJSON(0, 10)
	if err != nil {
		t.Fatalf("SelectBlocksJSON: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestOnBlockDisconnectedExcludesFromMaxHeight(t *testing.T) {
	s := openTestSink(t)
	b0, n0 := testBlockAndNode(0, 0x01)
	b1, n1 := testBlockAndNode(1, 0x02)
	s.OnBlockConnected(b0, n0)
	s.OnBlockConnected(b1, n1)

	height, err := s.SelectMaxHeight()
	if err != nil {
		t.Fatalf("SelectMaxHeight: %v", err)
	}
	if height != 1 {
		t.Fatalf("expected max height 1, got %d", height)
	}

	s.OnBlockDisconnected(b1, n1)

	height, err = s.SelectMaxHeight()
	if err != nil {
		t.Fatalf("SelectMaxHeight after disconnect: %v", err)
	}
	if height != 0 {
		t.Fatalf("expected max height 0 after disconnecting the tip, got %d", height)
	}
}

func TestSelectBlocksJSONOrdersMostRecentFirst(t *testing.T) {
	s := openTestSink(t)
	for h := int32(0); h <= 2; h++ {
		b, n := testBlockAndNode(h, byte(h))
		s.OnBlockConnected(b, n)
	}

	rows, err := s.SelectBlocksJSON(2, 10)
	if err != nil {
		t.Fatalf("SelectBlocksJSON: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}
