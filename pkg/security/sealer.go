// Package security seals session secrets before they are written to shared
// storage.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// sealedPrefix marks values written by an AES sealer. Values without it were
// stored in clear and are returned as they are.
const sealedPrefix = "enc:v1:"

// Sealer encrypts string values such as bearer tokens.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// ParseKey accepts a 16, 24 or 32 byte key in hex or base64. Hex wins when
// a string is valid in both.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if key, err := hex.DecodeString(s); err == nil && validKeySize(len(key)) {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && validKeySize(len(key)) {
		return key, nil
	}
	return nil, ErrInvalidKeySize
}

func validKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// FromKey returns an AES sealer for a configured key, or Nop when no key is
// set.
func FromKey(s string) (Sealer, error) {
	if strings.TrimSpace(s) == "" {
		return Nop(), nil
	}
	key, err := ParseKey(s)
	if err != nil {
		return nil, err
	}
	return NewAESSealer(key)
}

// NewAESSealer creates an AES-GCM sealer.
func NewAESSealer(key []byte) (Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryption
	}

	return &aesSealer{gcm: gcm}, nil
}

type aesSealer struct {
	gcm cipher.AEAD
}

func (a *aesSealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryption
	}

	sealed := a.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (a *aesSealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrDecryption
	}

	nonceSize := a.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrDecryption
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := a.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}

	return string(plaintext), nil
}

// Nop stores values in clear.
func Nop() Sealer { return nopSealer{} }

type nopSealer struct{}

func (nopSealer) Seal(plain string) (string, error) { return plain, nil }
func (nopSealer) Open(value string) (string, error) { return value, nil }
