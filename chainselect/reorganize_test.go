package chainselect

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/blockstore"
	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/chainstore"
	"github.com/svost/novacoin/merkle"
	"github.com/svost/novacoin/notify"
	"github.com/svost/novacoin/params"
	"github.com/svost/novacoin/primitives"
	"github.com/svost/novacoin/scriptverify"
	"github.com/svost/novacoin/validator"
	"github.com/svost/novacoin/wire"
)

func noopVerifier(scriptSig, scriptPubKey []byte, flags uint32, ctx scriptverify.TxContext) error {
	return nil
}

type chainhash256 = chainhash.Hash256

// testChain bundles the storage collaborators one Selector needs,
// wired against temp directories the way chainstore/store_test.go does.
type testChain struct {
	t       *testing.T
	sel     *Selector
	store   *chainstore.Store
	graph   *blockindex.Graph
	genesis *primitives.Block
}

// hardBits/easyBits are two PoW targets tuned so that one easyBits
// block has less chain trust than one hardBits block, but two
// easyBits blocks together have more: exercises the side-branch path
// (tip unchanged) after the first easyBits block and the reorganize
// path once the second easyBits block lands.
const (
	hardBits = 0x1d006000
	easyBits = 0x1d00a000
)

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	blocks, err := blockstore.Open(filepath.Join(t.TempDir(), "blocks"), params.MainNetMagic)
	if err != nil {
		t.Fatalf("blockstore.Open: %v", err)
	}
	t.Cleanup(func() { blocks.Close() })

	store, err := chainstore.Open(filepath.Join(t.TempDir(), "idx"))
	if err != nil {
		t.Fatalf("chainstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	graph := blockindex.New()
	pool := scriptverify.NewPool(1, noopVerifier)
	t.Cleanup(pool.Shutdown)

	genesis := coinbaseBlock(nil, 0, 1_600_000_000, hardBits, 0)
	genesisHash, err := genesis.BlockHeader.Hash()
	if err != nil {
		t.Fatalf("hash genesis: %v", err)
	}

	p := &params.Params{
		Network:                  params.MainNet,
		Magic:                    params.MainNetMagic,
		GenesisHash:              genesisHash,
		Checkpoints:              map[int32]chainhash256{0: genesisHash},
		StakeModifierCheckpoints: map[int32]uint32{},
	}

	sel := New(graph, store, blocks, p, pool, &notify.Registry{})
	return &testChain{t: t, sel: sel, store: store, graph: graph, genesis: genesis}
}

// coinbaseBlock builds a single-coinbase PoW block extending prevHash
// at height, committing to height in the coinbase script_sig per
// BIP34 (minimal push, valid for height 0..16 which is all these
// tests need). tag varies the coinbase beyond what height/time/bits
// already does, so that two blocks mined at the same height on
// different branches never collide on tx hash the way two miners'
// extranonce choices never would in practice.
func coinbaseBlock(prevHash *chainhash256, height int32, t uint32, bits uint32, tag byte) *primitives.Block {
	b := &primitives.Block{}
	b.Version = primitives.CurrentVersion
	b.Time = t
	b.Bits = bits
	if prevHash != nil {
		b.PrevBlock = *prevHash
	}
	scriptSig := []byte{0x00, 0x00}
	if height >= 1 && height <= 16 {
		scriptSig = []byte{byte(0x50 + height)}
	}
	scriptSig = append(scriptSig, tag)
	coinbase := primitives.Tx{
		Version: primitives.CurrentVersion,
		Time:    t,
		Vin: []primitives.TxIn{
			{PrevOut: primitives.OutPoint{Index: primitives.NullIndex}, ScriptSig: scriptSig, Sequence: primitives.FinalSequence},
		},
		Vout: []primitives.TxOut{
			{Value: 10 * wire.Coin, ScriptPubKey: []byte{0x51}},
		},
	}
	b.Txs = []primitives.Tx{coinbase}
	hashes := make([]chainhash256, len(b.Txs))
	for i := range b.Txs {
		hashes[i] = b.Txs[i].Hash()
	}
	b.MerkleRoot = merkle.BuildMerkleTree(hashes)
	return b
}

// acceptAndSelect mimics what validator.AcceptBlock would have done to
// a block and its node (block-store write, height, chain trust,
// insertion into the graph) before handing it to the selector, the way
// chainstate.State.AcceptAndConnect chains the two together.
func (tc *testChain) acceptAndSelect(block *primitives.Block, prev *blockindex.Node) (*blockindex.Node, *validator.Error) {
	hash, err := block.BlockHeader.Hash()
	if err != nil {
		tc.t.Fatalf("hash block: %v", err)
	}
	loc, err := tc.sel.Blocks.AppendBlock(block)
	if err != nil {
		tc.t.Fatalf("AppendBlock: %v", err)
	}
	node := &blockindex.Node{
		Hash:           hash,
		Header:         block.BlockHeader,
		FileID:         loc.FileID,
		BlockOffset:    loc.Offset,
		IsProofOfStake: false,
	}
	if prev == nil {
		node.ChainTrust = validator.BlockTrust(block.Bits, false)
		if err := tc.graph.InsertGenesis(node); err != nil {
			tc.t.Fatalf("InsertGenesis: %v", err)
		}
	} else {
		node.ChainTrust = new(big.Int).Add(prev.ChainTrust, validator.BlockTrust(block.Bits, false))
		if err := tc.graph.Insert(node); err != nil {
			tc.t.Fatalf("Insert: %v", err)
		}
	}
	return node, tc.sel.SetBestChain(context.Background(), block, node)
}

func TestInstallGenesis(t *testing.T) {
	tc := newTestChain(t)
	node, verr := tc.sel.InstallGenesis(tc.genesis)
	if verr != nil {
		t.Fatalf("InstallGenesis: %v", verr)
	}
	if tc.sel.Tip() != node {
		t.Fatalf("expected selector tip to be the installed genesis node")
	}
	if !node.IsInMainChain() {
		t.Fatalf("expected genesis to be marked in-main-chain")
	}
}

func TestFastForwardExtendsTip(t *testing.T) {
	tc := newTestChain(t)
	genesisNode, verr := tc.sel.InstallGenesis(tc.genesis)
	if verr != nil {
		t.Fatalf("InstallGenesis: %v", verr)
	}

	genesisHash, _ := tc.genesis.BlockHeader.Hash()
	b1 := coinbaseBlock(&genesisHash, 1, tc.genesis.Time+10, hardBits, 1)

	node, verr := tc.acceptAndSelect(b1, genesisNode)
	if verr != nil {
		t.Fatalf("acceptAndSelect b1: %v", verr)
	}
	if tc.sel.Tip() != node {
		t.Fatalf("expected tip to advance to b1")
	}

	got, ok, err := tc.store.ReadBestChain()
	if err != nil || !ok {
		t.Fatalf("ReadBestChain: ok=%v err=%v", ok, err)
	}
	if got != node.Hash {
		t.Fatalf("expected durable best-chain pointer to point at b1")
	}
}

// spendBlock builds a block like coinbaseBlock, plus a second tx that
// spends outIdx of spend, paying the same value onward with no fee.
func spendBlock(prevHash *chainhash256, height int32, t uint32, bits uint32, tag byte, spend chainhash256, outIdx uint32, value int64) *primitives.Block {
	b := &primitives.Block{}
	b.Version = primitives.CurrentVersion
	b.Time = t
	b.Bits = bits
	if prevHash != nil {
		b.PrevBlock = *prevHash
	}
	scriptSig := []byte{0x00, 0x00}
	if height >= 1 && height <= 16 {
		scriptSig = []byte{byte(0x50 + height)}
	}
	scriptSig = append(scriptSig, tag)
	coinbase := primitives.Tx{
		Version: primitives.CurrentVersion,
		Time:    t,
		Vin: []primitives.TxIn{
			{PrevOut: primitives.OutPoint{Index: primitives.NullIndex}, ScriptSig: scriptSig, Sequence: primitives.FinalSequence},
		},
		Vout: []primitives.TxOut{
			{Value: 10 * wire.Coin, ScriptPubKey: []byte{0x51}},
		},
	}
	spendTx := primitives.Tx{
		Version: primitives.CurrentVersion,
		Time:    t,
		Vin: []primitives.TxIn{
			{PrevOut: primitives.OutPoint{Hash: spend, Index: outIdx}, ScriptSig: []byte{tag, 0xee}, Sequence: primitives.FinalSequence},
		},
		Vout: []primitives.TxOut{
			{Value: value, ScriptPubKey: []byte{0x51}},
		},
	}
	b.Txs = []primitives.Tx{coinbase, spendTx}
	hashes := make([]chainhash256, len(b.Txs))
	for i := range b.Txs {
		hashes[i] = b.Txs[i].Hash()
	}
	b.MerkleRoot = merkle.BuildMerkleTree(hashes)
	return b
}

// TestReorganizeRevalidatesSpendOfRestoredOutput covers the ordinary
// reorg case of an output unspent at the fork point, spent on both
// branches: a1 spends the genesis coinbase and becomes the committed
// tip, then a heavier b1/b2 branch reorganizes onto a chain whose own
// b2 spends that same genesis output again. Disconnecting a1 restores
// it, and the connect span spending it back out must see that
// restoration even though it is still only staged in the reorganize's
// transaction, not yet committed to the durable index.
func TestReorganizeRevalidatesSpendOfRestoredOutput(t *testing.T) {
	tc := newTestChain(t)
	genesisNode, verr := tc.sel.InstallGenesis(tc.genesis)
	if verr != nil {
		t.Fatalf("InstallGenesis: %v", verr)
	}
	genesisHash, _ := tc.genesis.BlockHeader.Hash()
	genesisCoinbase := tc.genesis.Txs[0].Hash()

	a1Block := spendBlock(&genesisHash, 1, tc.genesis.Time+10, hardBits, 0xa1, genesisCoinbase, 0, 10*wire.Coin)
	a1, verr := tc.acceptAndSelect(a1Block, genesisNode)
	if verr != nil {
		t.Fatalf("acceptAndSelect a1: %v", verr)
	}
	if tc.sel.Tip() != a1 {
		t.Fatalf("expected a1 to become tip")
	}

	b1Block := coinbaseBlock(&genesisHash, 1, tc.genesis.Time+10, easyBits, 0xb1)
	b1, verr := tc.acceptAndSelect(b1Block, genesisNode)
	if verr != nil {
		t.Fatalf("acceptAndSelect b1: %v", verr)
	}
	if tc.sel.Tip() != a1 {
		t.Fatalf("expected a1 to remain tip after a lighter side branch")
	}

	b1Hash, _ := b1Block.BlockHeader.Hash()
	b2Block := spendBlock(&b1Hash, 2, b1Block.Time+10, easyBits, 0xb2, genesisCoinbase, 0, 10*wire.Coin)
	b2, verr := tc.acceptAndSelect(b2Block, b1)
	if verr != nil {
		t.Fatalf("acceptAndSelect b2 (spending a pre-fork output a1 also spent): %v", verr)
	}

	if tc.sel.Tip() != b2 {
		t.Fatalf("expected reorganize to switch tip to b2, got %v", tc.sel.Tip().Hash)
	}
}

func TestReorganizeSwitchesToHeavierBranch(t *testing.T) {
	tc := newTestChain(t)
	genesisNode, verr := tc.sel.InstallGenesis(tc.genesis)
	if verr != nil {
		t.Fatalf("InstallGenesis: %v", verr)
	}
	genesisHash, _ := tc.genesis.BlockHeader.Hash()

	a1Block := coinbaseBlock(&genesisHash, 1, tc.genesis.Time+10, hardBits, 0xa1)
	a1, verr := tc.acceptAndSelect(a1Block, genesisNode)
	if verr != nil {
		t.Fatalf("acceptAndSelect a1: %v", verr)
	}

	// b1 alone carries less trust than a1 (easyBits < hardBits' trust),
	// so it stays a recorded side branch; b2 tips the combined b1+b2
	// trust over a1's, triggering a reorganize.
	b1Block := coinbaseBlock(&genesisHash, 1, tc.genesis.Time+10, easyBits, 0xb1)
	b1, verr := tc.acceptAndSelect(b1Block, genesisNode)
	if verr != nil {
		t.Fatalf("acceptAndSelect b1: %v", verr)
	}
	if tc.sel.Tip() != a1 {
		t.Fatalf("expected a1 to remain tip after a lighter side branch")
	}

	b1Hash, _ := b1Block.BlockHeader.Hash()
	b2Block := coinbaseBlock(&b1Hash, 2, b1Block.Time+10, easyBits, 0xb2)
	b2, verr := tc.acceptAndSelect(b2Block, b1)
	if verr != nil {
		t.Fatalf("acceptAndSelect b2: %v", verr)
	}

	if tc.sel.Tip() != b2 {
		t.Fatalf("expected reorganize to switch tip to b2, got %v", tc.sel.Tip().Hash)
	}
	if a1.IsInMainChain() {
		t.Fatalf("expected a1 to no longer be in main chain")
	}
	if !b1.IsInMainChain() || !b2.IsInMainChain() {
		t.Fatalf("expected b1 and b2 to be in main chain")
	}

	got, ok, err := tc.store.ReadBestChain()
	if err != nil || !ok {
		t.Fatalf("ReadBestChain: ok=%v err=%v", ok, err)
	}
	if got != b2.Hash {
		t.Fatalf("expected durable best-chain pointer to point at b2")
	}
}
