// Package appdir locates the comfyone configuration directory, which holds
// the config file and the default download directory.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv overrides the configuration directory.
	DirEnv = "COMFYONE_DIR"

	// DownloadsDirName is the subdirectory outputs are saved to by default.
	DownloadsDirName = "downloads"
)

// ConfigFileNames are the config files looked up in Dir, in order.
var ConfigFileNames = []string{"config.yaml", "config.yml", "config.toml", "config.json"}

var (
	cachedDir string
	mu        sync.RWMutex
)

// Dir returns the configuration directory:
//  1. COMFYONE_DIR, if set
//  2. macOS: ~/Library/Application Support/ComfyOne
//  3. Windows: %APPDATA%\ComfyOne
//  4. otherwise: $XDG_CONFIG_HOME/comfyone or ~/.config/comfyone
//
// It does not create the directory; see EnsureDir.
func Dir() (string, error) {
	mu.RLock()
	if cachedDir != "" {
		dir := cachedDir
		mu.RUnlock()
		return dir, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if cachedDir != "" {
		return cachedDir, nil
	}
	dir, err := resolveDir()
	if err != nil {
		return "", err
	}
	cachedDir = dir
	return dir, nil
}

func resolveDir() (string, error) {
	if envDir := os.Getenv(DirEnv); envDir != "" {
		return envDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "ComfyOne"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "ComfyOne"), nil
	default:
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			configDir = filepath.Join(homeDir, ".config")
		}
		return filepath.Join(configDir, "comfyone"), nil
	}
}

// EnsureDir creates the configuration directory if it does not exist.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// ConfigPath returns the first existing config file in Dir, or an empty
// string when there is none.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	for _, name := range ConfigFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// DownloadsDir returns the default directory for downloaded outputs.
func DownloadsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DownloadsDirName), nil
}

// ResetCache clears the cached directory. Used by tests.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cachedDir = ""
}
