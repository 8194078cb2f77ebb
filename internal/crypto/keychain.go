package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	keychainService = "fracttalsync"
	keychainUser    = "secret-key"
)

// loadOrCreateKeychainKey loads the 32-byte AES key from the OS keychain,
// generating and storing a fresh one on first use.
func loadOrCreateKeychainKey() ([]byte, error) {
	keyString, err := keyring.Get(keychainService, keychainUser)
	if err == nil && keyString != "" {
		return []byte(keyString), nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Printf("WARNING: keychain lookup failed: %v", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keychainService, keychainUser, string(key)); err != nil {
		// Linux boxes without a keyring daemon can still run; stored
		// secrets just won't survive a restart.
		log.Printf("WARNING: failed to store key in keychain: %v", err)
		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
	}

	return key, nil
}

// DeleteKeychainKey removes the stored key, invalidating all encrypted
// secrets. Used by tests and reset scenarios.
func DeleteKeychainKey() error {
	return keyring.Delete(keychainService, keychainUser)
}
