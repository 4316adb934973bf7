//go:build darwin

package secrets

import (
	"errors"
	"testing"
)

const testServiceName = "ComfyOne-Test"

func TestKeychainStore_SetGetDelete(t *testing.T) {
	store := KeychainStore{}
	account := "test-account"

	_ = store.Delete(testServiceName, account)

	if err := store.Set(testServiceName, account, "first"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	// Second Set takes the update path.
	if err := store.Set(testServiceName, account, "second"); err != nil {
		t.Fatalf("Set() update error = %v", err)
	}

	got, err := store.Get(testServiceName, account)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "second" {
		t.Errorf("Get() = %q, want %q", got, "second")
	}

	if err := store.Delete(testServiceName, account); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := store.Get(testServiceName, account); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want %v", err, ErrNotFound)
	}
}

func TestKeychainStore_DeleteNotFound(t *testing.T) {
	if err := (KeychainStore{}).Delete(testServiceName, "nonexistent-account"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want %v", err, ErrNotFound)
	}
}
