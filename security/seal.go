package security

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	// ErrInvalidPassphrase is returned for passphrases SASLprep rejects.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
	// ErrOpen means the passphrase is wrong or the sealed data was altered.
	ErrOpen = errors.New("cannot open sealed message: wrong passphrase or corrupted data")
)

// SealOverhead is the number of bytes Seal adds to a message.
const SealOverhead = saltSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	prepped, err := stringprep.SASLprep.Prepare(passphrase)
	if err != nil || prepped == "" {
		return nil, ErrInvalidPassphrase
	}
	return argon2.IDKey([]byte(prepped), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize), nil
}

// Seal encrypts msg under passphrase. The result is salt | nonce | ciphertext.
func Seal(passphrase string, msg []byte) ([]byte, error) {
	out := make([]byte, saltSize+chacha20poly1305.NonceSizeX, SealOverhead+len(msg))
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	key, err := deriveKey(passphrase, out[:saltSize])
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return aead.Seal(out, out[saltSize:], msg, nil), nil
}

// Open reverses Seal.
func Open(passphrase string, sealed []byte) ([]byte, error) {
	if len(sealed) < SealOverhead {
		return nil, ErrOpen
	}
	salt, rest := sealed[:saltSize], sealed[saltSize:]
	nonce, ct := rest[:chacha20poly1305.NonceSizeX], rest[chacha20poly1305.NonceSizeX:]
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	msg, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return msg, nil
}
