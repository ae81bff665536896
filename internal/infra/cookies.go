package infra

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// EnsureCookies materializes COOKIES_BASE64 into the cookies file when the
// file does not exist yet. It returns the path the retriever should use, or
// "" when no cookies are available.
func EnsureCookies(cfg *Config, logger zerolog.Logger) (string, error) {
	path := cfg.CookiesFile
	if path == "" {
		return "", nil
	}
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		logger.Info().Str("path", path).Msg("cookies: using existing file")
		return path, nil
	}
	encoded := strings.TrimSpace(cfg.CookiesBase64)
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode COOKIES_BASE64: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create cookies dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write cookies: %w", err)
	}
	logger.Info().Str("path", path).Int("bytes", len(data)).Msg("cookies: written from environment")
	return path, nil
}
