// Package blocksig verifies the block signature carried by
// proof-of-stake blocks (spec §4.7 rule 3: "the block signature
// verifies against the public key recovered from txs[1].vout[1]").
// Grounded on the teacher's pack-wide dependency on
// github.com/btcsuite/btcd/btcec/v2 for secp256k1 operations; this
// core has no script interpreter of its own (Non-goal), so script
// parsing here is limited to the one pattern this rule requires:
// extracting a raw public key from a TX_PUBKEY-shaped script.
package blocksig

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ErrNotPubKeyScript is returned when the script does not have the
// minimal "<pubkey> OP_CHECKSIG" shape this rule requires.
var ErrNotPubKeyScript = fmt.Errorf("blocksig: script is not a TX_PUBKEY script")

// ExtractPubKey parses a minimal TX_PUBKEY script: a single push of a
// 33- or 65-byte compressed/uncompressed public key followed by
// OP_CHECKSIG (0xac).
func ExtractPubKey(script []byte) (*btcec.PublicKey, error) {
	if len(script) < 2 {
		return nil, ErrNotPubKeyScript
	}
	pushLen := int(script[0])
	if pushLen != 33 && pushLen != 65 {
		return nil, ErrNotPubKeyScript
	}
	if len(script) != 1+pushLen+1 {
		return nil, ErrNotPubKeyScript
	}
	if script[len(script)-1] != 0xac { // OP_CHECKSIG
		return nil, ErrNotPubKeyScript
	}
	return btcec.ParsePubKey(script[1 : 1+pushLen])
}

// VerifyFromPubKeyScript extracts the public key from a TX_PUBKEY
// script and verifies a DER-encoded signature over hash against it.
func VerifyFromPubKeyScript(pubKeyScript, hash, sig []byte) error {
	if len(sig) == 0 {
		return fmt.Errorf("blocksig: empty block signature")
	}
	pubKey, err := ExtractPubKey(pubKeyScript)
	if err != nil {
		return err
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("blocksig: parse signature: %w", err)
	}
	if !parsedSig.Verify(hash, pubKey) {
		return fmt.Errorf("blocksig: signature verification failed")
	}
	return nil
}
