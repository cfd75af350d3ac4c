package chainhash

import "golang.org/x/crypto/scrypt"

// Fixed scrypt parameters used for block-header proof-of-work in this
// chain family. N/r/p match the reference implementation; changing
// them would be a hard fork.
const (
	scryptN = 1024
	scryptR = 1
	scryptP = 1
)

// ScryptHeaderHash computes the scrypt digest of an 80-byte serialized
// block header, used as the block's proof-of-work hash. Unlike
// DoubleSHA256, which is used for tx/merkle hashing, this is the hash
// compared against the difficulty target.
func ScryptHeaderHash(header []byte) (Hash256, error) {
	out, err := scrypt.Key(header, header, scryptN, scryptR, scryptP, HashSize)
	if err != nil {
		return Hash256{}, err
	}
	return FromBytes(out), nil
}
