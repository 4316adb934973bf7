//go:build darwin

package secrets

import (
	"errors"

	"github.com/keybase/go-keychain"
)

func init() {
	store = KeychainStore{}
}

// KeychainStore keeps credentials in the macOS login keychain.
type KeychainStore struct{}

func genericPassword(service, account string) keychain.Item {
	item := keychain.NewItem()
	item.SetSecClass(keychain.SecClassGenericPassword)
	item.SetService(service)
	item.SetAccount(account)
	return item
}

func (KeychainStore) Get(service, account string) (string, error) {
	query := genericPassword(service, account)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := keychain.QueryItem(query)
	switch {
	case errors.Is(err, keychain.ErrorItemNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", err
	case len(results) == 0:
		return "", ErrNotFound
	}
	return string(results[0].Data), nil
}

func (k KeychainStore) Set(service, account, secret string) error {
	item := genericPassword(service, account)
	item.SetLabel(service + " API key")
	item.SetData([]byte(secret))
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlocked)

	err := keychain.AddItem(item)
	if errors.Is(err, keychain.ErrorDuplicateItem) {
		update := keychain.NewItem()
		update.SetData([]byte(secret))
		return keychain.UpdateItem(genericPassword(service, account), update)
	}
	return err
}

func (KeychainStore) Delete(service, account string) error {
	err := keychain.DeleteItem(genericPassword(service, account))
	if errors.Is(err, keychain.ErrorItemNotFound) {
		return ErrNotFound
	}
	return err
}

func (KeychainStore) IsSupported() bool { return true }
