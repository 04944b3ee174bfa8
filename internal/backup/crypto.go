package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// magic prefixes every snapshot so a wrong file fails before key derivation.
var magic = []byte("PNTRYBK1")

var (
	ErrNotSnapshot   = errors.New("not a pantry backup")
	ErrBadPassphrase = errors.New("wrong passphrase or corrupted backup")
)

// GenerateSalt returns 16 cryptographically random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt reads all of src and writes a sealed snapshot to dst.
// Format: [magic][16-byte salt][12-byte nonce][AES-256-GCM ciphertext]
// A fresh salt is drawn for every snapshot.
func Encrypt(dst io.Writer, src io.Reader, passphrase string) (int64, error) {
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return 0, err
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return 0, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return 0, fmt.Errorf("generate nonce: %w", err)
	}

	var out bytes.Buffer
	out.Grow(len(magic) + saltSize + nonceSize + len(plaintext) + gcm.Overhead())
	out.Write(magic)
	out.Write(salt)
	out.Write(nonce)
	out.Write(gcm.Seal(nil, nonce, plaintext, nil))

	n, err := out.WriteTo(dst)
	if err != nil {
		return n, fmt.Errorf("write encrypted snapshot: %w", err)
	}
	return n, nil
}

// Decrypt reads a sealed snapshot from src and writes the plaintext to dst.
func Decrypt(dst io.Writer, src io.Reader, passphrase string) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read encrypted snapshot: %w", err)
	}

	if len(data) < len(magic)+saltSize+nonceSize || !bytes.Equal(data[:len(magic)], magic) {
		return ErrNotSnapshot
	}
	data = data[len(magic):]

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrBadPassphrase
	}

	if _, err := dst.Write(plaintext); err != nil {
		return fmt.Errorf("write decrypted snapshot: %w", err)
	}
	return nil
}
