package blockstore

import (
	"testing"

	"github.com/svost/novacoin/primitives"
)

func sampleBlock(nonce uint32) *primitives.Block {
	b := &primitives.Block{}
	b.Version = primitives.CurrentVersion
	b.Time = 1234
	b.Bits = 0x1d00ffff
	b.Nonce = nonce
	b.Txs = []primitives.Tx{
		{
			Version: primitives.CurrentVersion,
			Vin: []primitives.TxIn{
				{Sequence: primitives.FinalSequence},
			},
			Vout: []primitives.TxOut{
				{Value: 5000000000, ScriptPubKey: []byte{0x51}},
			},
		},
	}
	return b
}

func TestAppendAndReadBlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0xd9b4bef9)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	b := sampleBlock(1)
	loc, err := s.AppendBlock(b)
	if err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}
	if loc.FileID != 0 || loc.Offset != 0 {
		t.Fatalf("unexpected locator: %+v", loc)
	}

	got, err := s.ReadBlock(loc)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if got.Nonce != b.Nonce || got.Time != b.Time || len(got.Txs) != 1 {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestAppendBlockSequentialOffsets(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0xd9b4bef9)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var locs []Locator
	for i := uint32(0); i < 5; i++ {
		loc, err := s.AppendBlock(sampleBlock(i))
		if err != nil {
			t.Fatalf("AppendBlock %d: %v", i, err)
		}
		locs = append(locs, loc)
	}

	for i, loc := range locs {
		got, err := s.ReadBlock(loc)
		if err != nil {
			t.Fatalf("ReadBlock %d: %v", i, err)
		}
		if got.Nonce != uint32(i) {
			t.Fatalf("block %d: expected nonce %d, got %d", i, i, got.Nonce)
		}
	}
}

func TestOpenReopenFindsExistingFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0xd9b4bef9)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.AppendBlock(sampleBlock(7)); err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir, 0xd9b4bef9)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	loc, err := s2.AppendBlock(sampleBlock(8))
	if err != nil {
		t.Fatalf("AppendBlock after reopen: %v", err)
	}
	if loc.FileID != 0 {
		t.Fatalf("expected append to continue file 0, got %d", loc.FileID)
	}
	if loc.Offset == 0 {
		t.Fatalf("expected nonzero offset after reopen, got 0")
	}
}

func TestReadBlockHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0xd9b4bef9)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	b := sampleBlock(42)
	loc, err := s.AppendBlock(b)
	if err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}

	hdr, err := s.ReadBlockHeader(loc)
	if err != nil {
		t.Fatalf("ReadBlockHeader: %v", err)
	}
	if hdr.Nonce != 42 {
		t.Fatalf("expected nonce 42, got %d", hdr.Nonce)
	}
	if len(hdr.Txs) != 0 {
		t.Fatalf("expected no txs parsed in header-only read, got %d", len(hdr.Txs))
	}
}

func TestRollsToNewFileWhenOverCap(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0xd9b4bef9)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	s.maxFileSize = 200 // force an early roll

	loc1, err := s.AppendBlock(sampleBlock(1))
	if err != nil {
		t.Fatalf("AppendBlock 1: %v", err)
	}
	loc2, err := s.AppendBlock(sampleBlock(2))
	if err != nil {
		t.Fatalf("AppendBlock 2: %v", err)
	}
	if loc1.FileID == loc2.FileID {
		t.Fatalf("expected roll to a new file, both got file %d", loc1.FileID)
	}
	if loc2.Offset != 0 {
		t.Fatalf("expected rolled file to start at offset 0, got %d", loc2.Offset)
	}
}
