package retrieval

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameRunes = 96
	defaultName  = "video"
)

var captionExts = []string{"vtt", "srt", "ass"}

var mimeTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"zip":  "application/zip",
}

// SanitizeFilename strips characters that are illegal in common filesystems
// and control characters, trims, and caps the result so an extension still
// fits in 100 characters.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`<>:"/\|?*`, r) || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())
	if rs := []rune(clean); len(rs) > maxNameRunes {
		clean = strings.TrimSpace(string(rs[:maxNameRunes]))
	}
	if clean == "" {
		return defaultName
	}
	return clean
}

// ASCIIFilename folds name to printable ASCII for the legacy filename
// parameter of Content-Disposition. Accents are dropped; anything else
// outside ASCII becomes '_'.
func ASCIIFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r < 0x20 || r > 0x7e:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "download"
	}
	return b.String()
}

// MimeTypeFor maps a file extension, with or without the dot, to a mime type.
func MimeTypeFor(ext string) string {
	if m, ok := mimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return m
	}
	return "application/octet-stream"
}

// FindCaption looks for the caption yt-dlp writes next to primary for lang.
func FindCaption(primary, lang string) string {
	if lang == "" || primary == "" {
		return ""
	}
	stem := strings.TrimSuffix(primary, filepath.Ext(primary))
	for _, ext := range captionExts {
		candidate := stem + "." + lang + "." + ext
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}

// findPrimary picks the largest media file in dir, ignoring captions and
// fetcher leftovers.
func findPrimary(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if !e.Type().IsRegular() || skipAsPrimary(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, e.Name()), info.Size()
		}
	}
	if best == "" {
		return "", errors.New("no output file produced")
	}
	return best, nil
}

func skipAsPrimary(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "part", "ytdl", "json", "tmp", "jpg", "webp", "png":
		return true
	}
	for _, c := range captionExts {
		if ext == c {
			return true
		}
	}
	return false
}
