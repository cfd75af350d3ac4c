package chainstore

import (
	"path/filepath"
	"testing"

	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/primitives"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "idx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTxIndexRoundTrip(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleSHA256([]byte("a transaction"))
	ti := primitives.NewTxIndex(primitives.DiskTxPos{FileID: 3, BlockOffset: 10, TxOffset: 90}, 2)

	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.UpdateTxIndex(hash, &ti); err != nil {
		t.Fatalf("UpdateTxIndex: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := s.ReadTxIndex(hash)
	if err != nil || !ok {
		t.Fatalf("ReadTxIndex: ok=%v err=%v", ok, err)
	}
	if got.Pos != ti.Pos || len(got.Spent) != len(ti.Spent) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, ti)
	}
}

func TestEraseTxIndex(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleSHA256([]byte("erase me"))
	ti := primitives.NewTxIndex(primitives.DiskTxPos{FileID: 1}, 1)

	tx, _ := s.Begin()
	tx.UpdateTxIndex(hash, &ti)
	tx.Commit()

	tx2, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tx2.EraseTxIndex(hash)
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, ok, err := s.ReadTxIndex(hash)
	if err != nil {
		t.Fatalf("ReadTxIndex: %v", err)
	}
	if ok {
		t.Fatalf("expected tx index to be erased")
	}
}

func TestBeginRejectsNestedTransaction(t *testing.T) {
	s := openTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	if _, err := s.Begin(); err != ErrNestedTx {
		t.Fatalf("expected ErrNestedTx, got %v", err)
	}
}

func TestAbortDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleSHA256([]byte("aborted"))
	ti := primitives.NewTxIndex(primitives.DiskTxPos{FileID: 9}, 0)

	tx, _ := s.Begin()
	tx.UpdateTxIndex(hash, &ti)
	tx.Abort()

	_, ok, err := s.ReadTxIndex(hash)
	if err != nil {
		t.Fatalf("ReadTxIndex: %v", err)
	}
	if ok {
		t.Fatalf("expected aborted write to not be visible")
	}
}

func TestBestChainRoundTrip(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleSHA256([]byte("tip"))

	tx, _ := s.Begin()
	tx.WriteBestChain(hash)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := s.ReadBestChain()
	if err != nil || !ok {
		t.Fatalf("ReadBestChain: ok=%v err=%v", ok, err)
	}
	if got != hash {
		t.Fatalf("best chain mismatch: got %v want %v", got, hash)
	}
}

func TestBlockIndexRoundTrip(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleSHA256([]byte("block"))
	rec := &BlockIndexRecord{
		Height:        100,
		Status:        4,
		FileID:        2,
		BlockOffset:   512,
		StakeModifier: 0xdeadbeef,
		EntropyBit:    1,
		IsProofOfStake: true,
	}
	rec.Header.Version = primitives.CurrentVersion
	rec.Header.Time = 123456

	tx, _ := s.Begin()
	if err := tx.WriteBlockIndex(hash, rec); err != nil {
		t.Fatalf("WriteBlockIndex: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := s.ReadBlockIndex(hash)
	if err != nil || !ok {
		t.Fatalf("ReadBlockIndex: ok=%v err=%v", ok, err)
	}
	if got.Height != rec.Height || got.StakeModifier != rec.StakeModifier || !got.IsProofOfStake {
		t.Fatalf("block index round trip mismatch: got %+v", got)
	}

	var seen int
	if err := s.AllBlockIndexRecords(func(h chainhash.Hash256, r *BlockIndexRecord) error {
		seen++
		return nil
	}); err != nil {
		t.Fatalf("AllBlockIndexRecords: %v", err)
	}
	if seen != 1 {
		t.Fatalf("expected 1 block index record, saw %d", seen)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleSHA256([]byte("checkpoint"))

	tx, _ := s.Begin()
	tx.WriteCheckpoint(500, hash)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := s.ReadCheckpoint(500)
	if err != nil || !ok {
		t.Fatalf("ReadCheckpoint: ok=%v err=%v", ok, err)
	}
	if got != hash {
		t.Fatalf("checkpoint mismatch: got %v want %v", got, hash)
	}
}
