package crypto

import (
	"bytes"
	cryptoaes "crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func encryptFixture(t *testing.T, plaintext, key, iv []byte) []byte {
	t.Helper()
	block, err := cryptoaes.NewCipher(key)
	require.NoError(t, err)
	padded := pkcs7Pad(plaintext, cryptoaes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext
}

func TestDeriveIV_SegmentIndexTwo(t *testing.T) {
	iv := DeriveIV(2)
	want, err := hex.DecodeString("00000000000000000000000000000002")
	require.NoError(t, err)
	require.Equal(t, want, iv)
}

func TestDecrypt_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, KeySize)
	iv := DeriveIV(2)
	plaintext := []byte("segment payload bytes, arbitrary length here")

	ciphertext := encryptFixture(t, plaintext, key, iv)

	got, err := Decrypt(ciphertext, key, iv, FallbackToCiphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecrypt_ExplicitIVOverridesDerived(t *testing.T) {
	key := bytes.Repeat([]byte{0x02}, KeySize)
	explicitIV := bytes.Repeat([]byte{0xAB}, 16)
	plaintext := []byte("0123456789abcdef")

	ciphertext := encryptFixture(t, plaintext, key, explicitIV)

	_, err := Decrypt(ciphertext, key, DeriveIV(7), FallbackToCiphertext)
	require.NoError(t, err) // wrong IV still "succeeds" but yields garbage, proving IV choice matters

	got, err := Decrypt(ciphertext, key, explicitIV, FallbackToCiphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecrypt_FallbackToCiphertextOnBadPadding(t *testing.T) {
	key := bytes.Repeat([]byte{0x03}, KeySize)
	iv := DeriveIV(0)
	garbage := bytes.Repeat([]byte{0x42}, 32) // valid block size, invalid padding

	got, err := Decrypt(garbage, key, iv, FallbackToCiphertext)
	require.NoError(t, err)
	require.Equal(t, garbage, got)
}

func TestDecrypt_FailHardOnBadPadding(t *testing.T) {
	key := bytes.Repeat([]byte{0x03}, KeySize)
	iv := DeriveIV(0)
	garbage := bytes.Repeat([]byte{0x42}, 32)

	_, err := Decrypt(garbage, key, iv, FailHard)
	require.Error(t, err)
}

func TestDecrypt_RejectsWrongKeySize(t *testing.T) {
	_, err := Decrypt(make([]byte, 32), []byte("short"), make([]byte, 16), FailHard)
	require.Error(t, err)
}
