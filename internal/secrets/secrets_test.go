package secrets

import (
	"errors"
	"testing"
)

func TestNoopStore(t *testing.T) {
	var s NoopStore
	if _, err := s.Get("service", "account"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Get() error = %v, want %v", err, ErrNotSupported)
	}
	if err := s.Set("service", "account", "x"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Set() error = %v, want %v", err, ErrNotSupported)
	}
	if err := s.Delete("service", "account"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Delete() error = %v, want %v", err, ErrNotSupported)
	}
	if s.IsSupported() {
		t.Error("IsSupported() = true, want false")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Error("Default() returned nil store")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	if _, err := LoadAPIKey(s); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadAPIKey() on empty store error = %v, want ErrNotFound", err)
	}
	if err := SaveAPIKey(s, ""); err == nil {
		t.Error("SaveAPIKey() should reject an empty key")
	}
	if err := SaveAPIKey(s, "sk-123"); err != nil {
		t.Fatalf("SaveAPIKey() error = %v", err)
	}

	got, err := LoadAPIKey(s)
	if err != nil || got != "sk-123" {
		t.Errorf("LoadAPIKey() = %q, %v", got, err)
	}

	if err := DeleteAPIKey(s); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	// Deleting again is not an error.
	if err := DeleteAPIKey(s); err != nil {
		t.Errorf("second DeleteAPIKey() error = %v", err)
	}
}

func TestMemoryStore_KeysAreScopedByService(t *testing.T) {
	s := NewMemoryStore()
	s.Set("a", "acct", "1")
	s.Set("b", "acct", "2")

	if v, _ := s.Get("a", "acct"); v != "1" {
		t.Errorf("Get(a) = %q", v)
	}
	if v, _ := s.Get("b", "acct"); v != "2" {
		t.Errorf("Get(b) = %q", v)
	}
}
