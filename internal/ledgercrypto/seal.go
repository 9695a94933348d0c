package ledgercrypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// MinRSAModulusBits is the minimum accepted RSA public key size (spec §3).
const MinRSAModulusBits = 2048

// AESKeySize is the size, in bytes, of the symmetric content key.
const AESKeySize = 32

// GCMIVSize is the size, in bytes, of the AES-GCM nonce (spec calls it an IV).
const GCMIVSize = 16

// GCMTagSize is the size, in bytes, of the GCM authentication tag appended
// to the ciphertext.
const GCMTagSize = 16

// ParseRSAPublicKeyPEM decodes a PEM-encoded PKIX RSA public key and enforces
// the minimum modulus size.
func ParseRSAPublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("ledgercrypto: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ledgercrypto: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("ledgercrypto: not an RSA public key")
	}
	if rsaPub.N.BitLen() < MinRSAModulusBits {
		return nil, fmt.Errorf("ledgercrypto: RSA modulus too small: %d bits", rsaPub.N.BitLen())
	}
	return rsaPub, nil
}

// EncodeRSAPublicKeyPEM is the inverse of ParseRSAPublicKeyPEM, used by
// cmd/ledgerkey (which plays the external client role) and by tests.
func EncodeRSAPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// SealPlaintext performs the client-side hybrid encryption: generates a
// random AES-256 key and IV, seals plaintext under AES-256-GCM, and wraps
// the AES key under the creator's RSA public key with OAEP/SHA-256. Lives
// here (rather than only client-side) because cmd/ledgerctl plays the
// external client role described in spec §1.
func SealPlaintext(pub *rsa.PublicKey, plaintext []byte) (ciphertext, iv, wrappedKey []byte, err error) {
	key := make([]byte, AESKeySize)
	if _, err = rand.Read(key); err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, GCMIVSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, GCMIVSize)
	if err != nil {
		return nil, nil, nil, err
	}
	ciphertext = gcm.Seal(nil, iv, plaintext, nil)

	wrappedKey, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return ciphertext, iv, wrappedKey, nil
}

// OpenCiphertext reverses SealPlaintext given the creator's private key.
// Used by cmd/ledgerctl and by tests exercising the round-trip law in
// spec §8.
func OpenCiphertext(priv *rsa.PrivateKey, ciphertext, iv, wrappedKey []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("ledgercrypto: unwrap key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, GCMIVSize)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ciphertext, nil)
}

// SignHash produces an RSA-SHA256 (PKCS#1 v1.5) signature over the ASCII hex
// bytes of blockHash, per spec §3 invariant 6.
func SignHash(priv *rsa.PrivateKey, blockHashHex string) ([]byte, error) {
	digest := sha256.Sum256([]byte(blockHashHex))
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
}

// VerifyHashSignature verifies an RSA-SHA256 signature over the ASCII hex
// bytes of blockHash under the creator's public key.
func VerifyHashSignature(pub *rsa.PublicKey, blockHashHex string, signature []byte) error {
	digest := sha256.Sum256([]byte(blockHashHex))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
}

// ConstantTimeHexEqual compares two lowercase hex strings without leaking
// timing information, per spec §4.2 step 4 ("constant-time compare").
func ConstantTimeHexEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
