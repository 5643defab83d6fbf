package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const encryptedPrefix = "enc:v1:"

// Encrypt encrypts plaintext using AES-256-GCM with the given hex-encoded key.
func Encrypt(hexKey, plaintext string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext using AES-256-GCM with the given hex-encoded key.
func Decrypt(hexKey, encoded string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// SecretBox seals stored CRM secrets. With an empty key it stores plaintext.
type SecretBox struct {
	hexKey string
}

func NewSecretBox(hexKey string) *SecretBox {
	return &SecretBox{hexKey: hexKey}
}

func (b *SecretBox) Seal(plaintext string) (string, error) {
	if b == nil || b.hexKey == "" || plaintext == "" {
		return plaintext, nil
	}
	sealed, err := Encrypt(b.hexKey, plaintext)
	if err != nil {
		return "", err
	}
	return encryptedPrefix + sealed, nil
}

// Open reverses Seal. Values written before a key was configured pass through.
func (b *SecretBox) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}
	if b == nil || b.hexKey == "" {
		return "", fmt.Errorf("encrypted secret found but no encryption key configured")
	}
	return Decrypt(b.hexKey, strings.TrimPrefix(stored, encryptedPrefix))
}
