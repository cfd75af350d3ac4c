// Package merkle builds and verifies the merkle tree committing a
// block's transaction set to its header's MerkleRoot field.
package merkle

import "github.com/svost/novacoin/chainhash"

// BuildMerkleTree returns the root hash of the classic Bitcoin-style
// pairwise merkle tree over txHashes. When a level has an odd number
// of nodes, the last node is paired with itself — this reproduces the
// historical CVE-2012-2459 quirk, which we must preserve for chain
// compatibility; duplicate-transaction rejection elsewhere is what
// actually closes the vulnerability, not removing the quirk here.
//
// Returns the zero hash if txHashes is empty.
func BuildMerkleTree(txHashes []chainhash.Hash256) chainhash.Hash256 {
	if len(txHashes) == 0 {
		return chainhash.Hash256{}
	}

	level := make([]chainhash.Hash256, len(txHashes))
	copy(level, txHashes)

	for len(level) > 1 {
		next := make([]chainhash.Hash256, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right chainhash.Hash256) chainhash.Hash256 {
	buf := make([]byte, chainhash.HashSize*2)
	copy(buf, left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleSHA256(buf)
}

// GetMerkleBranch returns the sibling path needed to recompute the
// root from the leaf at index i, from the bottom of the tree upward.
func GetMerkleBranch(txHashes []chainhash.Hash256, index int) []chainhash.Hash256 {
	if len(txHashes) == 0 {
		return nil
	}

	var branch []chainhash.Hash256
	level := make([]chainhash.Hash256, len(txHashes))
	copy(level, txHashes)
	idx := index

	for len(level) > 1 {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx // self-pair, same quirk as BuildMerkleTree
		}
		branch = append(branch, level[sibling])

		next := make([]chainhash.Hash256, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
		idx /= 2
	}
	return branch
}

// CheckMerkleBranch recomputes the root from leaf hash using branch
// and the leaf's original index, following the same odd-node-pairing
// convention as BuildMerkleTree.
func CheckMerkleBranch(leaf chainhash.Hash256, branch []chainhash.Hash256, index int) chainhash.Hash256 {
	hash := leaf
	idx := index
	for _, sib := range branch {
		if idx&1 == 0 {
			hash = hashPair(hash, sib)
		} else {
			hash = hashPair(sib, hash)
		}
		idx /= 2
	}
	return hash
}
