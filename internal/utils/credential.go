package utils

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidCredential is returned by Open when a payload is malformed,
// was sealed with another secret or has been tampered with.
var ErrInvalidCredential = errors.New("invalid credential payload")

const credentialInfo = "conference-checkin/credential/v1"

// CredentialSealer turns a participant's verification token into an opaque
// payload that can be printed as a QR code, and back.  The key is derived
// from the process-wide CREDENTIAL_SECRET with HKDF so the raw secret is
// never used directly as cipher key material.
type CredentialSealer struct {
	aead cipher.AEAD
}

// NewCredentialSealer derives the XChaCha20-Poly1305 key from secret.
func NewCredentialSealer(secret string) (*CredentialSealer, error) {
	if secret == "" {
		return nil, errors.New("credential secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(credentialInfo)), key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &CredentialSealer{aead: aead}, nil
}

// Seal encrypts token under a fresh random nonce and returns
// base64url(nonce || ciphertext) without padding.
func (s *CredentialSealer) Seal(token string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(token)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.  Any failure is reported as ErrInvalidCredential so
// callers can fall back to other lookups without inspecting the cause.
func (s *CredentialSealer) Open(payload string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrInvalidCredential
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrInvalidCredential
	}
	return string(plain), nil
}
