package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

// UploadMeta is what the intake layer hands the gate to classify an upload.
type UploadMeta struct {
	Mode             string
	ZK               *models.ZKMeta
	PlaintextExcerpt string // required for zero-knowledge uploads
}

// Gate decides between server-managed and zero-knowledge encryption and
// performs the server-side crypto. For zero-knowledge uploads the server
// never holds a plaintext-capable key; the gate only validates the envelope
// and the caller-supplied excerpt.
type Gate struct {
	master       []byte
	minPlaintext int
}

func NewGate(masterKey string, minPlaintext int) *Gate {
	return &Gate{master: []byte(masterKey), minPlaintext: minPlaintext}
}

// ResolveMode validates the upload metadata and returns the normalized
// encryption mode. Zero-knowledge uploads with an incomplete envelope or a
// too-short plaintext excerpt fail here, before any storage I/O.
func (g *Gate) ResolveMode(meta UploadMeta) (string, error) {
	switch meta.Mode {
	case "", models.EncryptionNone:
		return models.EncryptionNone, nil

	case models.EncryptionServer:
		if len(g.master) == 0 {
			return "", &core.ValidationError{Field: "encryption_mode", Reason: "server-managed encryption requested but no master key configured"}
		}
		return models.EncryptionServer, nil

	case models.EncryptionZK, "zk":
		if meta.ZK == nil {
			return "", &core.ValidationError{Field: "encryption_meta", Reason: "zero-knowledge upload missing envelope"}
		}
		for field, v := range map[string]string{
			"salt":                meta.ZK.Salt,
			"iv":                  meta.ZK.IV,
			"auth_tag":            meta.ZK.AuthTag,
			"encrypted_file_name": meta.ZK.EncryptedFileName,
		} {
			if v == "" {
				return "", &core.ValidationError{Field: field, Reason: "required for zero-knowledge uploads"}
			}
		}
		if len(meta.PlaintextExcerpt) < g.minPlaintext {
			return "", &core.ValidationError{
				Field:  "plaintext_excerpt",
				Reason: fmt.Sprintf("zero-knowledge upload needs at least %d chars of plaintext for indexing, got %d", g.minPlaintext, len(meta.PlaintextExcerpt)),
			}
		}
		return models.EncryptionZK, nil

	default:
		return "", &core.ValidationError{Field: "encryption_mode", Reason: "unknown mode " + meta.Mode}
	}
}

// EncryptForStorage encrypts plaintext with the owner's derived key.
// Output layout: nonce || ciphertext (GCM tag included).
func (g *Gate) EncryptForStorage(ownerID string, plaintext []byte) ([]byte, error) {
	gcm, err := g.ownerAEAD(ownerID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, []byte(ownerID)), nil
}

// DecryptForProcessing reverses EncryptForStorage. The plaintext exists in
// memory for the duration of one pipeline run only.
func (g *Gate) DecryptForProcessing(ownerID string, blob []byte) ([]byte, error) {
	gcm, err := g.ownerAEAD(ownerID)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, ct := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, []byte(ownerID))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return pt, nil
}

// ownerAEAD derives a per-owner AES-256-GCM cipher from the master key via
// HKDF-SHA256, salted with the owner ID.
func (g *Gate) ownerAEAD(ownerID string) (cipher.AEAD, error) {
	if len(g.master) == 0 {
		return nil, errors.New("no master key configured")
	}
	kdf := hkdf.New(sha256.New, g.master, []byte(ownerID), []byte("krypta/document-key/v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
