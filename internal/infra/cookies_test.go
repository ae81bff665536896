package infra

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestEnsureCookiesWritesDecodedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cookies.txt")
	content := "# Netscape HTTP Cookie File\n.example.com\tTRUE\t/\tFALSE\t0\tk\tv\n"
	cfg := &Config{CookiesFile: path, CookiesBase64: base64.StdEncoding.EncodeToString([]byte(content))}

	got, err := EnsureCookies(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("EnsureCookies: %v", err)
	}
	if got != path {
		t.Fatalf("path mismatch: got %q want %q", got, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cookies: %v", err)
	}
	if string(data) != content {
		t.Fatalf("content mismatch: %q", data)
	}
}

func TestEnsureCookiesKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte("existing"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := &Config{CookiesFile: path, CookiesBase64: base64.StdEncoding.EncodeToString([]byte("new"))}

	if _, err := EnsureCookies(cfg, zerolog.Nop()); err != nil {
		t.Fatalf("EnsureCookies: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "existing" {
		t.Fatalf("existing file overwritten: %q", data)
	}
}

func TestEnsureCookiesWithoutSource(t *testing.T) {
	cfg := &Config{CookiesFile: filepath.Join(t.TempDir(), "cookies.txt")}
	got, err := EnsureCookies(cfg, zerolog.Nop())
	if err != nil || got != "" {
		t.Fatalf("expected no cookies, got %q err=%v", got, err)
	}
}

func TestEnsureCookiesRejectsBadEncoding(t *testing.T) {
	cfg := &Config{CookiesFile: filepath.Join(t.TempDir(), "cookies.txt"), CookiesBase64: "***"}
	if _, err := EnsureCookies(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected decode error")
	}
}
