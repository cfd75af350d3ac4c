// Package chainselect implements the chain selector (C8): the single
// collaborator that decides, for every block the validator accepts
// into the block-index graph, whether it extends the active best
// chain, starts a reorganization away from it, or (for the very first
// block this core ever sees) installs the genesis node.
//
// Grounded on other_examples/tonyli2377-btcd__chain.go's
// connectBestChain/reorganizeChain split: that file's shape (walk back
// to a fork point, disconnect the old branch, connect the new one, all
// inside one database transaction) is the same shape spec §4.8
// describes, adapted here onto blockindex.Graph/chainstore/blockstore
// instead of btcd's utxo-viewpoint-backed database.Tx.
package chainselect

import (
	"context"
	"fmt"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/blockstore"
	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/chainstore"
	"github.com/svost/novacoin/notify"
	"github.com/svost/novacoin/params"
	"github.com/svost/novacoin/primitives"
	"github.com/svost/novacoin/scriptverify"
	"github.com/svost/novacoin/stakemodifier"
	"github.com/svost/novacoin/validator"
)

// Selector owns the best-chain pointer and the disconnect/connect
// sequencing that keeps the block-index graph, the durable tx index,
// and the raw block files in agreement. Exactly one goroutine may
// drive it at a time (spec §5): callers serialize AcceptBlock and
// SetBestChain with the same lock.
type Selector struct {
	Graph  *blockindex.Graph
	Store  *chainstore.Store
	Blocks *blockstore.Store
	Params *params.Params
	Pool   *scriptverify.Pool
	Notify *notify.Registry

	// InitialSync gates notification debouncing and the block-notify
	// side command, per notify.Registry's own semantics.
	InitialSync bool

	// Warnf, if set, receives a message whenever a candidate chain
	// fails to connect during reorganization.
	Warnf func(format string, args ...interface{})

	tip *blockindex.Node
}

// New returns a Selector with no best chain yet; callers must either
// call InstallGenesis or Resume before feeding it further blocks.
func New(graph *blockindex.Graph, store *chainstore.Store, blocks *blockstore.Store, p *params.Params, pool *scriptverify.Pool, reg *notify.Registry) *Selector {
	if reg == nil {
		reg = &notify.Registry{}
	}
	return &Selector{Graph: graph, Store: store, Blocks: blocks, Params: p, Pool: pool, Notify: reg}
}

// Tip returns the current best-chain tip, or nil before genesis.
func (s *Selector) Tip() *blockindex.Node { return s.tip }

// Resume restores the in-memory tip pointer after the graph has been
// rebuilt from AllBlockIndexRecords at startup.
func (s *Selector) Resume(tip *blockindex.Node) { s.tip = tip }

// InstallGenesis implements spec §4.8 case 1: the very first block,
// with no predecessor to connect against. It is the only path that
// bypasses validator.AcceptBlock's "parent must already be known"
// requirement, since the genesis block has no parent by definition.
func (s *Selector) InstallGenesis(block *primitives.Block) (*blockindex.Node, *validator.Error) {
	if s.tip != nil {
		return nil, &validator.Error{Kind: validator.KindConsistency, Message: "genesis already installed"}
	}

	hash, err := block.BlockHeader.Hash()
	if err != nil {
		return nil, &validator.Error{Kind: validator.KindProtocol, Message: fmt.Sprintf("hash genesis header: %v", err)}
	}
	if hash != s.Params.GenesisHash {
		return nil, &validator.Error{Kind: validator.KindConfig, Message: "block does not match the configured genesis hash"}
	}

	loc, err := s.Blocks.AppendBlock(block)
	if err != nil {
		return nil, &validator.Error{Kind: validator.KindStorage, Message: "append genesis block to store", Err: err}
	}

	node := &blockindex.Node{
		Hash:           hash,
		Header:         block.BlockHeader,
		IsProofOfStake: block.IsProofOfStake(),
		FileID:         loc.FileID,
		BlockOffset:    loc.Offset,
	}
	node.ChainTrust = validator.BlockTrust(block.Bits, node.IsProofOfStake)
	node.StakeModifier = stakemodifier.ComputeStakeModifier(0, block.Time, nil)
	node.StakeModifierChecksum = stakemodifier.Checksum(0, node.StakeModifier, node.IsProofOfStake)
	node.EntropyBit = stakemodifier.EntropyBit(0, hash, s.Params.UsesHashEntropyBit(0))

	if err := s.Graph.InsertGenesis(node); err != nil {
		return nil, &validator.Error{Kind: validator.KindConsistency, Message: fmt.Sprintf("insert genesis: %v", err), Err: err}
	}

	known := map[chainhash.Hash256]*primitives.Tx{}
	txn, err := s.Store.Begin()
	if err != nil {
		return nil, &validator.Error{Kind: validator.KindStorage, Message: "begin genesis transaction", Err: err}
	}
	if verr := s.connectOne(context.Background(), txn, block, node, known, nil); verr != nil {
		txn.Abort()
		return nil, verr
	}
	txn.WriteBestChain(hash)
	if err := s.writeNode(txn, node); err != nil {
		txn.Abort()
		return nil, &validator.Error{Kind: validator.KindStorage, Message: "write genesis block index record", Err: err}
	}
	if err := txn.Commit(); err != nil {
		return nil, &validator.Error{Kind: validator.KindStorage, Message: "commit genesis transaction", Err: err}
	}

	node.Status |= blockindex.StatusValid | blockindex.StatusInMainChain
	s.tip = node

	s.Notify.NotifyConnected(block, node)
	s.Notify.NotifyBlocksChanged(s.InitialSync)
	s.Notify.NotifyBestChain(node, s.InitialSync)
	return node, nil
}

// SetBestChain implements spec §4.8's remaining cases for a node that
// validator.AcceptBlock has already inserted into the graph (so
// node.Prev is always non-nil here). Case 2 (fast-forward) and case 3
// (reorganize) both fall through to reorganizeTo, which degenerates to
// a single connect when node.Prev is already the current tip.
func (s *Selector) SetBestChain(ctx context.Context, block *primitives.Block, node *blockindex.Node) *validator.Error {
	if s.tip == nil {
		return &validator.Error{Kind: validator.KindConsistency, Message: "SetBestChain called before genesis was installed"}
	}
	if node.ChainTrust.Cmp(s.tip.ChainTrust) <= 0 {
		// Not heavier than the current best chain: the node stays in
		// the graph as a recorded but non-active branch. Still persist
		// it so a later, heavier descendant can be found on restart.
		return s.persistOnly(node)
	}
	return s.reorganizeTo(ctx, block, node)
}

// persistOnly records a node's durable BlockIndexRecord without
// touching the best-chain pointer, for blocks that extend a branch
// that is not (yet) the heaviest.
func (s *Selector) persistOnly(node *blockindex.Node) *validator.Error {
	txn, err := s.Store.Begin()
	if err != nil {
		return &validator.Error{Kind: validator.KindStorage, Message: "begin side-branch transaction", Err: err}
	}
	if err := s.writeNode(txn, node); err != nil {
		txn.Abort()
		return &validator.Error{Kind: validator.KindStorage, Message: "write side-branch block index record", Err: err}
	}
	if err := txn.Commit(); err != nil {
		return &validator.Error{Kind: validator.KindStorage, Message: "commit side-branch transaction", Err: err}
	}
	return nil
}

func (s *Selector) writeNode(txn *chainstore.Tx, node *blockindex.Node) error {
	return txn.WriteBlockIndex(node.Hash, chainstore.NodeToRecord(node))
}
