// Package creatorkey is a passphrase-protected, at-rest keystore for a
// creator's RSA private key, used by the external client tooling this repo
// ships for test/demo purposes (cmd/ledgerkey, cmd/ledgerctl). The server
// never sees private keys (spec §1); this package exists entirely on the
// client side of that boundary.
//
// The on-disk JSON shape and scrypt-then-encrypt construction mirror the
// teacher's accounts/keystore encrypted keyfile (key.go's EncryptKey/
// DecryptKey, itself following go-ethereum's Web3 Secret Storage
// definition), adapted from an ECDSA blockchain account key to an RSA-2048
// creator key: scrypt derives a 32-byte key from the passphrase, and
// AES-256-GCM (rather than the teacher's AES-128-CTR + separate HMAC, since
// GCM's tag already authenticates) seals the DER-encoded private key.
package creatorkey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters. LightScryptN/P mirror the teacher's -lightkdf flag for
// fast local testing; standard values are the default.
const (
	StandardScryptN = 1 << 18
	StandardScryptP = 1
	LightScryptN    = 1 << 12
	LightScryptP    = 6

	scryptR     = 8
	scryptDKLen = 32
	saltLen     = 32
	keyVersion  = 1
)

// EncryptedKey is the on-disk JSON envelope for a creator's private key.
type EncryptedKey struct {
	Version     int         `json:"version"`
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Crypto      cryptoJSON  `json:"crypto"`
}

type cryptoJSON struct {
	Cipher       string       `json:"cipher"`
	CipherText   string       `json:"ciphertext"`
	CipherParams cipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    kdfParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

type cipherParams struct {
	Nonce string `json:"nonce"`
}

type kdfParams struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

// Encrypt seals priv under passphrase using scryptN/scryptP (use
// StandardScryptN/P or LightScryptN/P), returning the JSON keyfile bytes.
func Encrypt(priv *rsa.PrivateKey, displayName, passphrase string, scryptN, scryptP int) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	derivedKey, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, fmt.Errorf("creatorkey: derive key: %w", err)
	}

	plaintext := x509.MarshalPKCS1PrivateKey(priv)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	mac := computeMAC(derivedKey, ciphertext)

	ek := EncryptedKey{
		Version:     keyVersion,
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Crypto: cryptoJSON{
			Cipher:       "aes-256-gcm",
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: cipherParams{Nonce: hex.EncodeToString(nonce)},
			KDF:          "scrypt",
			KDFParams: kdfParams{
				N: scryptN, R: scryptR, P: scryptP, DKLen: scryptDKLen,
				Salt: hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac),
		},
	}
	return json.MarshalIndent(ek, "", "  ")
}

// Decrypt reverses Encrypt given the correct passphrase.
func Decrypt(keyfileJSON []byte, passphrase string) (*rsa.PrivateKey, string, error) {
	var ek EncryptedKey
	if err := json.Unmarshal(keyfileJSON, &ek); err != nil {
		return nil, "", fmt.Errorf("creatorkey: parse keyfile: %w", err)
	}
	if ek.Crypto.Cipher != "aes-256-gcm" || ek.Crypto.KDF != "scrypt" {
		return nil, "", fmt.Errorf("creatorkey: unsupported cipher/kdf %q/%q", ek.Crypto.Cipher, ek.Crypto.KDF)
	}

	salt, err := hex.DecodeString(ek.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: salt: %w", err)
	}
	derivedKey, err := scrypt.Key([]byte(passphrase), salt, ek.Crypto.KDFParams.N, ek.Crypto.KDFParams.R,
		ek.Crypto.KDFParams.P, ek.Crypto.KDFParams.DKLen)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: derive key: %w", err)
	}

	ciphertext, err := hex.DecodeString(ek.Crypto.CipherText)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: ciphertext: %w", err)
	}
	wantMAC, err := hex.DecodeString(ek.Crypto.MAC)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: mac: %w", err)
	}
	gotMAC := computeMAC(derivedKey, ciphertext)
	if subtle.ConstantTimeCompare(wantMAC, gotMAC) != 1 {
		return nil, "", fmt.Errorf("creatorkey: could not decrypt key with given passphrase")
	}

	nonce, err := hex.DecodeString(ek.Crypto.CipherParams.Nonce)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: nonce: %w", err)
	}
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: could not decrypt key with given passphrase")
	}
	priv, err := x509.ParsePKCS1PrivateKey(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("creatorkey: parse private key: %w", err)
	}
	return priv, ek.DisplayName, nil
}

// computeMAC is a defense-in-depth check alongside GCM's own tag, following
// the teacher keystore's belt-and-suspenders pattern of deriving the MAC
// from the same derived key rather than trusting the cipher alone.
func computeMAC(derivedKey, ciphertext []byte) []byte {
	sum := sha256.Sum256(append(append([]byte{}, derivedKey...), ciphertext...))
	return sum[:]
}
