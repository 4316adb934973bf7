//go:build !darwin

package secrets

func init() {
	store = NoopStore{}
}
