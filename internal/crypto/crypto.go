// Package crypto seals host private keys that are kept in the database.
//
// Tokens are fernet tokens. The key ring lives in the settings table with
// the newest key first: Seal always uses the newest key, Open accepts any
// key of the ring, so a key can be rotated before every token is resealed.
package crypto

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fernet/fernet-go"
	"gorm.io/gorm"

	"github.com/pftpd/pftpd-core/internal/database"
)

const keyRingSetting = "seal_keys"

// ErrInvalidToken is returned by Open for tokens no ring key can open.
var ErrInvalidToken = errors.New("invalid sealed token")

var ringMu sync.Mutex

func loadRing() ([]*fernet.Key, error) {
	encoded, err := database.GetSetting(keyRingSetting)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		k, err := newKey()
		if err != nil {
			return nil, err
		}
		ring := []*fernet.Key{k}
		return ring, saveRing(ring)
	}
	if err != nil {
		return nil, fmt.Errorf("load seal keys: %w", err)
	}

	ring, err := fernet.DecodeKeys(strings.Split(encoded, ",")...)
	if err != nil {
		return nil, fmt.Errorf("decode seal keys: %w", err)
	}
	return ring, nil
}

func saveRing(ring []*fernet.Key) error {
	parts := make([]string, len(ring))
	for i, k := range ring {
		parts[i] = k.Encode()
	}
	if err := database.SetSetting(keyRingSetting, strings.Join(parts, ",")); err != nil {
		return fmt.Errorf("save seal keys: %w", err)
	}
	return nil
}

func newKey() (*fernet.Key, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return nil, fmt.Errorf("generate seal key: %w", err)
	}
	return &k, nil
}

// Seal encrypts plaintext with the newest ring key, creating the ring on
// first use.
func Seal(plaintext []byte) (string, error) {
	ringMu.Lock()
	ring, err := loadRing()
	ringMu.Unlock()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign(plaintext, ring[0])
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return string(tok), nil
}

// Open decrypts a token produced by Seal with any ring key. Tokens never
// expire.
func Open(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	ringMu.Lock()
	ring, err := loadRing()
	ringMu.Unlock()
	if err != nil {
		return nil, err
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, ring)
	if msg == nil {
		return nil, ErrInvalidToken
	}
	return msg, nil
}

// RotateKey puts a new key at the front of the ring. Older keys keep
// opening existing tokens until RetireOldKeys is called.
func RotateKey() error {
	ringMu.Lock()
	defer ringMu.Unlock()
	ring, err := loadRing()
	if err != nil {
		return err
	}
	k, err := newKey()
	if err != nil {
		return err
	}
	return saveRing(append([]*fernet.Key{k}, ring...))
}

// RetireOldKeys drops every key but the newest. Tokens sealed with a dropped
// key can no longer be opened.
func RetireOldKeys() (int, error) {
	ringMu.Lock()
	defer ringMu.Unlock()
	ring, err := loadRing()
	if err != nil {
		return 0, err
	}
	if len(ring) == 1 {
		return 0, nil
	}
	return len(ring) - 1, saveRing(ring[:1])
}

// RingSize returns the number of keys in the ring.
func RingSize() (int, error) {
	ringMu.Lock()
	defer ringMu.Unlock()
	ring, err := loadRing()
	if err != nil {
		return 0, err
	}
	return len(ring), nil
}
