// Package ledgercrypto implements the cryptographic primitives shared by the
// mining coordinator, the verifier, and peer gossip: the canonical block hash
// input (spec §4.2), RSA-SHA256 signing/verification, AES-256-GCM sealing,
// and RSA-OAEP key wrapping. Kept on the standard library's crypto packages
// throughout (see DESIGN.md) since no third-party library in the retrieval
// pack improves on crypto/rsa, crypto/aes, or crypto/sha256 for these
// well-trodden primitives.
package ledgercrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// GenesisSentinel is the 64-character all-zero previous_hash placeholder
// used wherever a block has no predecessor.
const GenesisSentinel = "0000000000000000000000000000000000000000000000000000000000000000"

// BlockHashInput is every field that participates in the canonical hash
// input (spec §4.2). CreatorID is the creator's textual identifier, or the
// empty string for an unsigned/creatorless candidate (never produced by a
// valid commit, but kept distinct from "missing" for defensive decoding).
type BlockHashInput struct {
	PreviousHash     string
	EncryptedData    []byte
	DataIV           []byte
	EncryptedDataKey []byte
	Nonce            uint64
	CreatedAt        string
	CreatorID        string
	Difficulty       int
}

// CanonicalHashInput joins the eight fields enumerated in spec §4.2 with the
// literal delimiter '|', in order. This exact byte sequence is what both
// client and server hash; any deviation breaks proof-of-work verification.
// See SPEC_FULL.md's Open Questions for why this is eight fields, not nine.
func CanonicalHashInput(b BlockHashInput) string {
	prev := b.PreviousHash
	if prev == "" {
		prev = GenesisSentinel
	}
	fields := []string{
		prev,
		hex.EncodeToString(b.EncryptedData),
		hex.EncodeToString(b.DataIV),
		hex.EncodeToString(b.EncryptedDataKey),
		strconv.FormatUint(b.Nonce, 10),
		b.CreatedAt,
		b.CreatorID,
		strconv.Itoa(b.Difficulty),
	}
	return strings.Join(fields, "|")
}

// BlockHash computes lowercase_hex(SHA256(utf8_bytes(hash_input))).
func BlockHash(b BlockHashInput) string {
	sum := sha256.Sum256([]byte(CanonicalHashInput(b)))
	return hex.EncodeToString(sum[:])
}

// HasLeadingZeros reports whether hash begins with count '0' hex digits.
// This is the proof-of-work check from spec §4.2/§4.3.
func HasLeadingZeros(hash string, count int) bool {
	if count < 0 || count > len(hash) {
		return false
	}
	for i := 0; i < count; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// ValidateHex checks that s decodes to exactly n bytes of hex.
func ValidateHex(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if n >= 0 && len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
