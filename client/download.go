package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// Download fetches rawURL in a single attempt and writes it to savePath.
// An empty savePath means DownloadDir/<file name from the URL>. Parent
// directories are created. It returns the path written.
//
// Asset URLs are pre-signed, so no Authorization header is sent.
// All failures are connection errors.
func (c *Client) Download(ctx context.Context, rawURL, savePath string) (string, error) {
	finalPath := savePath
	if finalPath == "" {
		name, err := fileNameFromURL(rawURL)
		if err != nil {
			return "", newConnectionError("failed to download file", err)
		}
		finalPath = filepath.Join(c.cfg.DownloadDir, name)
	}

	c.logger.Debug("Downloading file", "url", rawURL, "path", finalPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", newConnectionError("failed to download file", err)
	}
	req.Header.Set("User-Agent", "comfyone-go/"+Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newConnectionError("failed to download file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newConnectionError("failed to download file",
			&statusError{StatusCode: resp.StatusCode})
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return "", newConnectionError("failed to download file", err)
	}
	if err := writeAtomic(finalPath, resp.Body); err != nil {
		return "", newConnectionError("failed to download file", err)
	}

	c.logger.Info("File downloaded", "path", finalPath)
	return finalPath, nil
}

func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("cannot derive a file name from %q", rawURL)
	}
	return name, nil
}

// writeAtomic copies r into a temp file next to dst and renames it into place.
func writeAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
