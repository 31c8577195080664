// Package credential implements the Credential Store (spec.md §4.1):
// authenticated symmetric encryption of device passwords, backed by a
// key file enforced to owner-only permissions on startup.
package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/util"
)

// ciphertextPrefix marks a string produced by Store.Encrypt, so migration
// of legacy plaintext passwords is idempotent: IsEncrypted distinguishes
// old plaintext from our ciphertexts without needing a side table.
const ciphertextPrefix = "enc1:"

const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
	keyFileMode      = 0o600
)

// Store encrypts and decrypts device passwords with a key derived from a
// secret read from a key file beside the data directory.
type Store struct {
	secret []byte
}

// Open loads (or generates) the key file at path, enforcing owner-only
// permissions. A missing key file triggers generation — there is never a
// silent plaintext fallback.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errs.NewStorage(path, err.Error())
	}

	secret, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errs.NewStorage(path, err.Error())
		}
		secret = make([]byte, 32)
		if _, rerr := rand.Read(secret); rerr != nil {
			return nil, errs.NewCrypto("generating key material: " + rerr.Error())
		}
		if werr := os.WriteFile(path, secret, keyFileMode); werr != nil {
			return nil, errs.NewStorage(path, werr.Error())
		}
		util.WithField("path", path).Info("credential: generated new encryption key")
	}

	if err := enforceOwnerOnly(path); err != nil {
		return nil, err
	}

	return &Store{secret: secret}, nil
}

// enforceOwnerOnly chmods the key file to 0600 if it is more permissive.
// Never relaxes permissions, only tightens them.
func enforceOwnerOnly(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.NewStorage(path, err.Error())
	}
	if info.Mode().Perm()&^keyFileMode != 0 {
		if err := os.Chmod(path, keyFileMode); err != nil {
			return errs.NewStorage(path, "enforcing owner-only permissions: "+err.Error())
		}
	}
	return nil
}

// IsEncrypted reports whether s looks like a ciphertext this Store
// produced, vs. legacy plaintext.
func IsEncrypted(s string) bool {
	return len(s) > len(ciphertextPrefix) && s[:len(ciphertextPrefix)] == ciphertextPrefix
}

// Encrypt authenticated-encrypts plaintext, returning a self-describing
// ciphertext string (salt + nonce + sealed box, base64, prefixed).
func (s *Store) Encrypt(plaintext string) (string, error) {
	aead, salt, err := s.newAEAD()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.NewCrypto("generating nonce: " + err.Error())
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	return ciphertextPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt authenticated-decrypts a ciphertext produced by Encrypt. Any
// tamper or wrong-key condition surfaces as a CryptoError — callers must
// treat the device as unusable, never fall through to plaintext.
func (s *Store) Decrypt(ciphertext string) (string, error) {
	if !IsEncrypted(ciphertext) {
		return "", errs.NewCrypto("input is not a recognized ciphertext")
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext[len(ciphertextPrefix):])
	if err != nil {
		return "", errs.NewCrypto("malformed ciphertext: " + err.Error())
	}
	if len(blob) < saltSize+chacha20poly1305.NonceSize {
		return "", errs.NewCrypto("ciphertext too short")
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+chacha20poly1305.NonceSize]
	sealed := blob[saltSize+chacha20poly1305.NonceSize:]

	aead, err := s.aeadForSalt(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errs.NewCrypto("authentication failed (tamper or wrong key)")
	}
	return string(plaintext), nil
}

// Migrate converts a legacy plaintext password to an encrypted one,
// idempotently — calling Migrate on an already-encrypted value is a no-op
// that returns it unchanged.
func (s *Store) Migrate(value string) (string, error) {
	if IsEncrypted(value) {
		return value, nil
	}
	return s.Encrypt(value)
}

func (s *Store) newAEAD() (cipher.AEAD, []byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, errs.NewCrypto("generating salt: " + err.Error())
	}
	aead, err := s.aeadForSalt(salt)
	if err != nil {
		return nil, nil, err
	}
	return aead, salt, nil
}

func (s *Store) aeadForSalt(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(s.secret, salt, pbkdf2Iterations, chacha20poly1305.KeySize, sha256.New)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.NewCrypto("constructing cipher: " + err.Error())
	}
	return aead, nil
}

var errRotateUnsupported = errors.New("credential: key rotation must be performed offline, see ops docs")

// RotateKey is documented for operations but intentionally unimplemented
// at runtime (spec.md §4.1): rotating the key file while the orchestrator
// holds live sessions would invalidate in-flight decrypts. Rotation is an
// offline maintenance procedure.
func (s *Store) RotateKey(newSecret []byte) error {
	return fmt.Errorf("%w", errRotateUnsupported)
}
