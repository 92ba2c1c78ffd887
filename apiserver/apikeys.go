package apiserver

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/ddevcap/unshackle-core/apiserver/middleware"
)

// BcryptCost is the work factor used for every API-key hash, matching the
// teacher's password-hashing cost — here it protects a configured API key
// so a leaked config-at-rest file doesn't trivially hand out live keys.
const BcryptCost = bcrypt.DefaultCost

// KeyConfig is one entry from the serve.api_keys[] configuration list.
type KeyConfig struct {
	Name        string
	HashedKey   string
	Tier        string
	AllowedCDMs []string
	DefaultCDM  string
}

// KeyStore authenticates raw API-key header values against a configured,
// bcrypt-hashed set. Implements middleware.KeyLookup.
type KeyStore struct {
	keys []KeyConfig
}

// NewKeyStore builds a KeyStore from configuration.
func NewKeyStore(keys []KeyConfig) *KeyStore {
	return &KeyStore{keys: keys}
}

// HashKey bcrypt-hashes a raw API key for storage in configuration.
func HashKey(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), BcryptCost)
	return string(hash), err
}

// Authenticate implements middleware.KeyLookup.
func (s *KeyStore) Authenticate(candidate string) (middleware.APIKeyInfo, bool) {
	for _, k := range s.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.HashedKey), []byte(candidate)) == nil {
			return middleware.APIKeyInfo{
				Name:        k.Name,
				Tier:        k.Tier,
				AllowedCDMs: k.AllowedCDMs,
				DefaultCDM:  k.DefaultCDM,
			}, true
		}
	}
	return middleware.APIKeyInfo{}, false
}
