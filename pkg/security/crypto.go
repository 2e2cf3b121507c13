// Package security implements the message-body cipher: AES-256-GCM with a
// fresh random 96-bit IV per call and a 128-bit authentication tag. The key
// is provisioned once at startup and passed into the Cipher explicitly;
// nothing in this package reads ambient state.
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

	"ticketchat/pkg/apperr"
)

// KeySize is the required key length (AES-256).
const KeySize = 32

// Envelope is the encrypted form of a message body as persisted. All three
// fields are std-base64 encoded; an all-empty envelope represents a blank
// body (attachment-only message).
type Envelope struct {
	CipherText string `json:"cipherText"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// Empty reports whether the envelope carries no encrypted body.
func (e Envelope) Empty() bool {
	return e.CipherText == "" && e.IV == "" && e.AuthTag == ""
}

// ParseKey decodes a hex- or base64-encoded key string and enforces the
// 32-byte length. Hex is tried first since a 64-char hex string is also
// valid base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("encryption key is empty")
	}
	if b, err := hex.DecodeString(s); err == nil {
		if len(b) != KeySize {
			return nil, errors.New("encryption key must be 32 bytes (AES-256)")
		}
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("encryption key is neither valid hex nor base64")
	}
	if len(b) != KeySize {
		return nil, errors.New("encryption key must be 32 bytes (AES-256)")
	}
	return b, nil
}

// Cipher encrypts and decrypts message bodies. The AEAD is constructed once
// and is safe for concurrent use; the key is never mutated after New.
type Cipher struct {
	key    []byte
	aead   cipher.AEAD
	locked bool
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, errors.New("encryption key must be 32 bytes (AES-256)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	c := &Cipher{key: key, aead: aead}
	// Best-effort: keep key material out of swap.
	if err := lockMemory(key); err == nil {
		c.locked = true
	}
	return c, nil
}

// Close releases the mlock on the key, if held.
func (c *Cipher) Close() {
	if c.locked {
		_ = unlockMemory(c.key)
		c.locked = false
	}
}

// Encrypt seals plain under a fresh random nonce. Blank input (empty or
// whitespace-only) yields an all-empty envelope; the caller persists that as
// an attachment-only record.
func (c *Cipher) Encrypt(plain string) (Envelope, error) {
	if strings.TrimSpace(plain) == "" {
		return Envelope{}, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, apperr.Crypto("failed to generate iv", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plain), nil)
	// Seal appends the 16-byte tag; store it as a separate field.
	ct := sealed[:len(sealed)-c.aead.Overhead()]
	tag := sealed[len(sealed)-c.aead.Overhead():]
	return Envelope{
		CipherText: base64.StdEncoding.EncodeToString(ct),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Decrypt opens an envelope. Any missing field yields "" (the blank-body
// contract); a bad encoding or tag mismatch is a CryptoError and must abort
// the enclosing read.
func (c *Cipher) Decrypt(env Envelope) (string, error) {
	if env.CipherText == "" || env.IV == "" || env.AuthTag == "" {
		return "", nil
	}
	ct, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return "", apperr.Crypto("invalid ciphertext encoding", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", apperr.Crypto("invalid iv encoding", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return "", apperr.Crypto("invalid auth tag encoding", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", apperr.Crypto("invalid iv length", nil)
	}
	plain, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", apperr.Crypto("message authentication failed", err)
	}
	return string(plain), nil
}
