package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Entry is one file placed into an archive.
type Entry struct {
	// Name is the path inside the archive. Defaults to the base name of Path.
	Name string
	Path string
}

// BundleFiles writes entries into a new deflate-compressed archive at dest
// and returns the archive size. On failure the partial archive is removed.
func BundleFiles(dest string, entries []Entry) (size int64, err error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("zip: create archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(out)
	for _, entry := range entries {
		if err = addFile(zw, entry); err != nil {
			return 0, err
		}
	}
	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("zip: finalize: %w", err)
	}
	info, err := out.Stat()
	if err != nil {
		return 0, fmt.Errorf("zip: stat archive: %w", err)
	}
	if err = out.Close(); err != nil {
		return 0, fmt.Errorf("zip: close archive: %w", err)
	}
	return info.Size(), nil
}

func addFile(zw *zip.Writer, entry Entry) error {
	src, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", filepath.Base(entry.Path), err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("zip: stat %s: %w", filepath.Base(entry.Path), err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip: header: %w", err)
	}
	hdr.Name = entry.Name
	if hdr.Name == "" {
		hdr.Name = filepath.Base(entry.Path)
	}
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip: add %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("zip: copy %s: %w", hdr.Name, err)
	}
	return nil
}
