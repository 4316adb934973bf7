// Package secrets stores the comfyone API key outside the config file.
// On macOS it uses the system Keychain; elsewhere the store is unsupported
// and the key must come from a flag, the environment or the config file.
package secrets

import "errors"

// ServiceName is the keychain service comfyone credentials live under.
const ServiceName = "ComfyOne"

// AccountAPIKey is the account holding the API key.
const AccountAPIKey = "api-key"

var (
	// ErrNotFound is returned when no credential is stored.
	ErrNotFound = errors.New("credential not found")
	// ErrNotSupported is returned on platforms without a secret store.
	ErrNotSupported = errors.New("secret store not supported on this platform")
)

// Store reads and writes credentials. Implementations are safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound when the credential does not exist.
	Get(service, account string) (string, error)
	// Set creates or replaces a credential.
	Set(service, account, secret string) error
	// Delete returns ErrNotFound when the credential does not exist.
	Delete(service, account string) error
	IsSupported() bool
}

// store is set by the platform init.
var store Store

// Default returns the platform store. It is never nil.
func Default() Store {
	if store == nil {
		store = NoopStore{}
	}
	return store
}

// LoadAPIKey returns the stored API key.
func LoadAPIKey(s Store) (string, error) {
	return s.Get(ServiceName, AccountAPIKey)
}

// SaveAPIKey stores key, replacing any previous one.
func SaveAPIKey(s Store, key string) error {
	if key == "" {
		return errors.New("API key is empty")
	}
	return s.Set(ServiceName, AccountAPIKey, key)
}

// DeleteAPIKey removes the stored key. A missing key is not an error.
func DeleteAPIKey(s Store) error {
	err := s.Delete(ServiceName, AccountAPIKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
