package stakemodifier

import (
	"encoding/binary"
	"fmt"

	"github.com/svost/novacoin/chainhash"
)

// modifierIntervalSeconds is the target spacing, in seconds, of
// selection intervals used to pick which recent stake block
// contributes its entropy bit to a new modifier — the Peercoin
// algorithm's "modifier interval".
const modifierIntervalSeconds = 6 * 60 * 60 // 6 hours, mainnet value

// StakeSource describes one candidate block considered when selecting
// entropy-bit contributors for a new stake modifier. Kept minimal and
// decoupled from blockindex.Node so this package has no dependency on
// the graph package; the validator adapts blockindex.Node values into
// these before calling ComputeStakeModifier.
type StakeSource struct {
	Hash           chainhash.Hash256
	Time           uint32
	EntropyBit     uint8
	IsProofOfStake bool
}

// ComputeStakeModifier derives the new stake modifier for a block at
// blockTime, given the previous modifier and an ordered (oldest-first)
// window of the most recent stake-eligible ancestor blocks. Selection
// walks the window from newest to oldest, folding in one candidate's
// entropy bit per elapsed modifier interval, matching the reference
// "selection interval" walk. The accumulator starts as the
// double-SHA-256 of the previous modifier and blockTime; each selected
// entropy bit is appended to it as one byte and the result hashed again
// with double-SHA-256. The new modifier is the first 8 bytes of the
// final accumulator, read little-endian.
func ComputeStakeModifier(prevModifier uint64, blockTime uint32, window []StakeSource) uint64 {
	if len(window) == 0 {
		return prevModifier
	}

	var buf [8 + 4]byte
	binary.LittleEndian.PutUint64(buf[0:8], prevModifier)
	binary.LittleEndian.PutUint32(buf[8:12], blockTime)

	acc := chainhash.DoubleSHA256(buf[:])

	nextInterval := blockTime - blockTime%modifierIntervalSeconds
	for i := len(window) - 1; i >= 0; i-- {
		src := window[i]
		if src.Time > nextInterval {
			continue
		}
		lane := make([]byte, chainhash.HashSize+1)
		copy(lane, acc[:])
		lane[chainhash.HashSize] = src.EntropyBit
		acc = chainhash.DoubleSHA256(lane)
		nextInterval -= modifierIntervalSeconds
	}

	return binary.LittleEndian.Uint64(acc[:8])
}

// Checksum returns the 4-byte checksum recorded alongside a stake
// modifier, computed as the low 32 bits of double-SHA-256 over the
// modifier's little-endian bytes plus the node's proof-of-stake flag
// and height, so that a table of hard-coded checkpoints can pin
// specific (height, checksum) pairs without needing the full modifier.
func Checksum(height int32, modifier uint64, isProofOfStake bool) uint32 {
	var buf [8 + 4 + 1]byte
	binary.LittleEndian.PutUint64(buf[0:8], modifier)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(height))
	if isProofOfStake {
		buf[12] = 1
	}
	h := chainhash.DoubleSHA256(buf[:])
	return binary.LittleEndian.Uint32(h[:4])
}

// ErrCheckpointMismatch is returned by CheckCheckpoint when a block at
// a hard-coded height carries a stake-modifier checksum that does not
// match the expected value.
type ErrCheckpointMismatch struct {
	Height   int32
	Got      uint32
	Expected uint32
}

func (e *ErrCheckpointMismatch) Error() string {
	return fmt.Sprintf("stakemodifier: checksum mismatch at height %d: got %#x, expected %#x", e.Height, e.Got, e.Expected)
}

// CheckCheckpoint enforces a hard-coded stake-modifier checksum table.
// heights not present in checkpoints are unconstrained.
func CheckCheckpoint(height int32, checksum uint32, checkpoints map[int32]uint32) error {
	expected, ok := checkpoints[height]
	if !ok {
		return nil
	}
	if checksum != expected {
		return &ErrCheckpointMismatch{Height: height, Got: checksum, Expected: expected}
	}
	return nil
}
