package profile

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of the store key in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrDecrypt is returned when a record cannot be opened with the current key.
var ErrDecrypt = errors.New("record cannot be decrypted with the current key")

// recordMagic prefixes every sealed record and is bound as associated data.
var recordMagic = []byte("JVP2")

// GenerateKey returns a new random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext as magic || nonce || ciphertext.
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, len(recordMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, recordMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, recordMagic), nil
}

func open(key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if !bytes.HasPrefix(data, recordMagic) || len(data) < len(recordMagic)+aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecrypt
	}
	data = data[len(recordMagic):]
	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, recordMagic)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
