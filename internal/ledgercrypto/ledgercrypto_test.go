package ledgercrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("hello, ledger")

	ciphertext, iv, wrapped, err := SealPlaintext(&key.PublicKey, plaintext)
	require.NoError(t, err)
	require.Len(t, iv, GCMIVSize)
	require.Len(t, wrapped, key.PublicKey.Size())
	require.GreaterOrEqual(t, len(ciphertext), GCMTagSize)

	got, err := OpenCiphertext(key, ciphertext, iv, wrapped)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSignatureRoundTrip(t *testing.T) {
	key := testKey(t)
	hash := BlockHash(BlockHashInput{
		PreviousHash: GenesisSentinel,
		Nonce:        42,
		CreatedAt:    "2026-01-01T00:00:00Z",
		CreatorID:    "alice",
		Difficulty:   1,
	})
	sig, err := SignHash(key, hash)
	require.NoError(t, err)
	require.NoError(t, VerifyHashSignature(&key.PublicKey, hash, sig))

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xFF
	require.Error(t, VerifyHashSignature(&key.PublicKey, hash, tampered))
}

func TestCanonicalHashInputIsDeterministic(t *testing.T) {
	in := BlockHashInput{
		PreviousHash:     GenesisSentinel,
		EncryptedData:    []byte{0xde, 0xad},
		DataIV:           []byte{0x01, 0x02},
		EncryptedDataKey: []byte{0x03},
		Nonce:            7,
		CreatedAt:        "2026-01-01T00:00:00Z",
		CreatorID:        "alice",
		Difficulty:       4,
	}
	want := GenesisSentinel + "|dead|0102|03|7|2026-01-01T00:00:00Z|alice|4"
	require.Equal(t, want, CanonicalHashInput(in))
	require.Equal(t, BlockHash(in), BlockHash(in))
}

func TestCanonicalHashInputEmptyPreviousHashUsesSentinel(t *testing.T) {
	in := BlockHashInput{CreatedAt: "t", Difficulty: 1}
	require.Contains(t, CanonicalHashInput(in), GenesisSentinel)
}

func TestHasLeadingZeros(t *testing.T) {
	require.True(t, HasLeadingZeros("0000abcd", 4))
	require.False(t, HasLeadingZeros("0001abcd", 4))
	require.True(t, HasLeadingZeros("abcd", 0))
	require.False(t, HasLeadingZeros("abcd", 5))
}

func TestParseRSAPublicKeyPEMRejectsSmallModulus(t *testing.T) {
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	pemBytes, err := EncodeRSAPublicKeyPEM(&small.PublicKey)
	require.NoError(t, err)
	_, err = ParseRSAPublicKeyPEM(pemBytes)
	require.Error(t, err)
}

func TestParseRSAPublicKeyPEMRoundTrip(t *testing.T) {
	key := testKey(t)
	pemBytes, err := EncodeRSAPublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	pub, err := ParseRSAPublicKeyPEM(pemBytes)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey.N, pub.N)
}
