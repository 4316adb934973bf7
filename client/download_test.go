package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownload_DefaultPathUsesURLBaseName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("download must not send credentials, got %q", auth)
		}
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "downloads")
	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, DownloadDir: dir, Logger: NopLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, err := c.Download(context.Background(), srv.URL+"/outputs/ComfyUI_0001.png?sig=abc", "")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	want := filepath.Join(dir, "ComfyUI_0001.png")
	if got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "image bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestDownload_ExplicitPathCreatesParents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	dst := filepath.Join(t.TempDir(), "a", "b", "out.png")
	got, err := c.Download(context.Background(), srv.URL+"/x.png", dst)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if got != dst {
		t.Errorf("path = %q, want %q", got, dst)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}

	// No temp files left beside the result.
	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("expected only the downloaded file, found %d entries", len(entries))
	}
}

func TestDownload_FailuresAreConnectionErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	dst := filepath.Join(t.TempDir(), "missing.png")

	_, err := c.Download(context.Background(), srv.URL+"/missing.png", dst)
	if !IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if IsRetryExhausted(err) {
		t.Error("downloads are single attempt")
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("no file should be written on failure")
	}
}

func TestDownload_URLWithoutFileName(t *testing.T) {
	c, err := New(Config{APIKey: "test-key", Logger: NopLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c.Download(context.Background(), "https://cdn.example.com/", ""); !IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}
