// Package params carries the per-network consensus constants this
// core validates against: block/sigop limits, time drift tolerances,
// genesis hash, hardened checkpoints, and the stake-entropy-bit
// switch-over height.
package params

import (
	"time"

	"github.com/svost/novacoin/chainhash"
)

// Network identifies which consensus parameter set is active.
type Network int

const (
	MainNet Network = iota
	TestNet
)

// Network magic bytes, used to frame blocks on disk and on the wire.
// Grounded on the teacher's block.go MainNetMagic/TestNetMagic
// constants (same domain, same 4-byte framing convention).
const (
	MainNetMagic uint32 = 0xe4e8e9e5
	TestNetMagic uint32 = 0xcdf2c0ef
)

// Consensus-wide constants (mainnet values; see spec §6).
const (
	MaxBlockSize        = 1_000_000
	MaxBlockSigOps       = MaxBlockSize / 50
	MaxOrphanTransactions = MaxBlockSize / 100
	CurrentVersion       = 6

	FutureDrift = 2 * time.Hour
	PastDrift   = 2 * time.Hour

	// StakeEntropyBitSwitchHeight is the mainnet height at which the
	// stake entropy bit switches from the pregenerated table lookup to
	// the low bit of the block hash.
	StakeEntropyBitSwitchHeight = 9689

	// CheckLockTimeVerifySwitchTime is the transaction timestamp at or
	// after which OP_CHECKLOCKTIMEVERIFY is included in that
	// transaction's script flags during ConnectBlock.
	CheckLockTimeVerifySwitchTime = 1_420_070_400 // 2015-01-01T00:00:00Z

	// ProtectReorgWindowExtendedAt is when the post-reorg max time
	// offset narrows from one week to twelve hours (spec §4.7 rule 3).
	ProtectReorgWindowExtendedAt = 1_450_569_600 // 2015-12-20T00:00:00Z
)

// Params bundles the network-dependent subset of the above.
type Params struct {
	Network       Network
	Magic         uint32
	GenesisHash   chainhash.Hash256
	Checkpoints   map[int32]chainhash.Hash256
	StakeModifierCheckpoints map[int32]uint32
}

// Mainnet returns the mainnet parameter set.
func Mainnet() *Params {
	genesis, err := chainhash.FromString("00000a060336cbb72fe969666d337b87198b1add2abaa59cca226820b32933a4")
	if err != nil {
		// The literal above is a compile-time constant; a parse
		// failure here means the constant itself is wrong.
		panic(err)
	}
	return &Params{
		Network:     MainNet,
		Magic:       MainNetMagic,
		GenesisHash: genesis,
		Checkpoints: map[int32]chainhash.Hash256{
			0: genesis,
		},
		StakeModifierCheckpoints: map[int32]uint32{
			0: 0x0e00670b,
		},
	}
}

// Testnet returns the testnet parameter set.
func Testnet() *Params {
	genesis, err := chainhash.FromString("0000c763e402f2436da9ed36c7286f62c3f6e5dbafce9ff289bd43d7459327eb")
	if err != nil {
		panic(err)
	}
	return &Params{
		Network:     TestNet,
		Magic:       TestNetMagic,
		GenesisHash: genesis,
		Checkpoints: map[int32]chainhash.Hash256{
			0: genesis,
		},
		StakeModifierCheckpoints: map[int32]uint32{},
	}
}

// UsesHashEntropyBit reports whether, at the given height, the stake
// entropy bit is taken from the low bit of the block hash rather than
// the pregenerated table. Testnet always uses the hash bit.
func (p *Params) UsesHashEntropyBit(height int32) bool {
	return p.Network == TestNet || height >= StakeEntropyBitSwitchHeight
}
