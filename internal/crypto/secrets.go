package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

var secretKey []byte

// InitSecrets initializes the AES-256 key used to protect API secrets at
// rest. Priority:
// 1. ENCRYPTION_KEY environment variable (development/testing)
// 2. OS keychain (production)
// 3. Generate a new key and store it in the keychain
func InitSecrets() error {
	if keyString := os.Getenv("ENCRYPTION_KEY"); keyString != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(keyString)
		if err != nil || len(keyBytes) != 32 {
			// Not a usable raw key; derive 32 bytes from whatever was given.
			hash := sha256.Sum256([]byte(keyString))
			secretKey = hash[:]
		} else {
			secretKey = keyBytes
		}
		return nil
	}

	key, err := loadOrCreateKeychainKey()
	if err != nil {
		return fmt.Errorf("failed to initialize secret key from keychain: %w", err)
	}

	secretKey = key
	return nil
}

// EncryptSecret encrypts an API secret with AES-256-GCM and returns
// base64-encoded ciphertext with the nonce prepended.
func EncryptSecret(plaintext string) (string, error) {
	if len(secretKey) == 0 {
		return "", errors.New("secret encryption not initialized")
	}

	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(ciphertextB64 string) (string, error) {
	if len(secretKey) == 0 {
		return "", errors.New("secret encryption not initialized")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
