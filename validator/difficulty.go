package validator

import (
	"math/big"

	"github.com/svost/novacoin/chainhash"
)

// hashToBig interprets a Hash256's little-endian bytes as the
// big-endian integer it represents, for comparison against a target.
func hashToBig(h chainhash.Hash256) *big.Int {
	buf := make([]byte, chainhash.HashSize)
	for i := 0; i < chainhash.HashSize; i++ {
		buf[i] = h[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(buf)
}

// CompactToBig expands a block's "bits" field into a full-precision
// target, using the same compact representation Bitcoin-lineage chains
// use (a 1-byte exponent, 3-byte mantissa). Grounded on the decode
// shape used throughout other_examples' btcd-derived chain code.
func CompactToBig(bits uint32) *big.Int {
	mantissa := bits & 0x007fffff
	exponent := uint(bits >> 24)

	var target big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target.SetUint64(uint64(mantissa))
	} else {
		target.SetUint64(uint64(mantissa))
		target.Lsh(&target, 8*(exponent-3))
	}

	if bits&0x00800000 != 0 {
		target.Neg(&target)
	}
	return &target
}

// BigToCompact is the inverse of CompactToBig.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}
	negative := n.Sign() < 0
	abs := new(big.Int).Abs(n)

	exponent := uint((len(abs.Bytes())))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(abs.Uint64())
		mantissa <<= 8 * (3 - exponent)
	} else {
		tmp := new(big.Int).Rsh(abs, 8*(exponent-3))
		mantissa = uint32(tmp.Uint64())
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent)<<24 | mantissa
	if negative && mantissa != 0 {
		compact |= 0x00800000
	}
	return compact
}

// BlockTrust returns the cumulative-trust contribution of a single
// block: proof-of-work blocks contribute the inverse of their target
// (more work, more trust), proof-of-stake blocks contribute a fixed
// unit per the Peercoin convention of weighting stake blocks by coin
// age rather than raw difficulty.
func BlockTrust(bits uint32, isProofOfStake bool) *big.Int {
	if isProofOfStake {
		return big.NewInt(1)
	}
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	maxTarget := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(maxTarget, new(big.Int).Add(target, big.NewInt(1)))
}
