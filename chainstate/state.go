// Package chainstate is the single lock-owning façade described in
// the design notes: it glues the block-index graph (C5), the
// validator (C7), and the chain selector (C8) behind one mutex, so
// every other collaborator in this core (a future P2P layer, an
// import job, a test) drives the chain through one serialized entry
// point instead of coordinating those three packages' locking itself.
package chainstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/blockstore"
	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/chainselect"
	"github.com/svost/novacoin/chainstore"
	"github.com/svost/novacoin/notify"
	"github.com/svost/novacoin/params"
	"github.com/svost/novacoin/primitives"
	"github.com/svost/novacoin/scriptverify"
	"github.com/svost/novacoin/validator"
)

// State is the façade. Exactly one goroutine at a time may be inside
// AcceptAndConnect/InstallGenesis; the embedded mutex enforces that,
// matching spec §5's "single block processing thread" assumption that
// validator.AcceptBlock and chainselect.SetBestChain otherwise both
// rely on their caller to uphold.
type State struct {
	mu sync.Mutex

	Graph    *blockindex.Graph
	Store    *chainstore.Store
	Blocks   *blockstore.Store
	Params   *params.Params
	Selector *chainselect.Selector

	CheckpointMode       validator.SyncCheckpointMode
	SyncCheckpointHeight int32
	SyncCheckpointSpan   int32

	Warnf func(format string, args ...interface{})
}

// New builds a State over an already-open block store and index
// store. Callers still must call either InstallGenesis (empty store)
// or Rebuild (existing store) before feeding it further blocks.
func New(graph *blockindex.Graph, store *chainstore.Store, blocks *blockstore.Store, p *params.Params, pool *scriptverify.Pool, reg *notify.Registry) *State {
	return &State{
		Graph:    graph,
		Store:    store,
		Blocks:   blocks,
		Params:   p,
		Selector: chainselect.New(graph, store, blocks, p, pool, reg),
	}
}

// Tip returns the current best-chain node, or nil before genesis.
func (s *State) Tip() *blockindex.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Selector.Tip()
}

// InstallGenesis accepts this core's one and only parentless block.
func (s *State) InstallGenesis(block *primitives.Block) (*blockindex.Node, *validator.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Selector.InstallGenesis(block)
}

// AcceptAndConnect runs the full spec §4.7/§4.8 pipeline for one
// block: AcceptBlock's context-sensitive checks and block-index
// insertion, followed by SetBestChain's fast-forward/reorganize/
// persist-only decision. It is the one entry point every caller above
// this façade uses once genesis is installed.
func (s *State) AcceptAndConnect(ctx context.Context, block *primitives.Block) (*blockindex.Node, *validator.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac := &validator.AcceptContext{
		Graph:                s.Graph,
		Blocks:               s.Blocks,
		Params:                s.Params,
		CheckpointMode:       s.CheckpointMode,
		SyncCheckpointHeight: s.SyncCheckpointHeight,
		SyncCheckpointSpan:   s.SyncCheckpointSpan,
		Warnf:                s.Warnf,
	}
	node, verr := validator.AcceptBlock(ac, block)
	if verr != nil {
		return nil, verr
	}

	if verr := s.Selector.SetBestChain(ctx, block, node); verr != nil {
		return node, verr
	}
	return node, nil
}

// Rebuild repopulates the in-memory block-index graph and the chain
// selector's tip from the durable records chainstore already holds,
// for a process restart. It does not touch the block store or replay
// any ConnectBlock bookkeeping: every BlockIndexRecord already carries
// the accounting (MoneySupply, StakeModifier, Status, ...) that
// bookkeeping produced.
func (s *State) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := map[chainhash.Hash256]*chainstore.BlockIndexRecord{}
	if err := s.Store.AllBlockIndexRecords(func(hash chainhash.Hash256, rec *chainstore.BlockIndexRecord) error {
		records[hash] = rec
		return nil
	}); err != nil {
		return fmt.Errorf("chainstate: rebuild: read block index records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	genesisRec, ok := records[s.Params.GenesisHash]
	if !ok {
		return fmt.Errorf("chainstate: rebuild: genesis block missing from index store")
	}
	genesis := genesisRec.ToNode(s.Params.GenesisHash)
	if err := s.Graph.InsertGenesis(genesis); err != nil {
		return fmt.Errorf("chainstate: rebuild: insert genesis: %w", err)
	}
	delete(records, s.Params.GenesisHash)

	for len(records) > 0 {
		progressed := false
		for hash, rec := range records {
			node := rec.ToNode(hash)
			if s.Graph.Get(node.Header.PrevBlock) == nil {
				continue
			}
			if err := s.Graph.Insert(node); err != nil {
				return fmt.Errorf("chainstate: rebuild: insert %v: %w", hash, err)
			}
			delete(records, hash)
			progressed = true
		}
		if !progressed {
			return fmt.Errorf("chainstate: rebuild: %d block index records have no resolvable parent", len(records))
		}
	}

	bestHash, found, err := s.Store.ReadBestChain()
	if err != nil {
		return fmt.Errorf("chainstate: rebuild: read best chain pointer: %w", err)
	}
	if !found {
		return fmt.Errorf("chainstate: rebuild: best chain pointer missing from index store")
	}
	tip := s.Graph.Get(bestHash)
	if tip == nil {
		return fmt.Errorf("chainstate: rebuild: best chain tip %v not found in rebuilt graph", bestHash)
	}
	s.Graph.SetBestChainLinks(genesis, tip)
	s.Selector.Resume(tip)
	return nil
}
