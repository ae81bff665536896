package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fetchd/internal/domain"
	"fetchd/internal/retrieval"
	"fetchd/pkg/zip"
)

// PackageArtifact turns a fetch result into the deliverable. When a caption
// was requested and written, primary and caption are bundled into
// "<title>.zip" next to the primary file; otherwise the primary file is
// delivered as "<title>.<ext>".
func PackageArtifact(res *retrieval.Result, subtitleLang string) (*domain.Artifact, error) {
	if res == nil || res.PrimaryFile == "" {
		return nil, fmt.Errorf("%w: no output file", retrieval.ErrRetrieval)
	}
	title := retrieval.SanitizeFilename(res.Title)
	ext := res.Extension
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(res.PrimaryFile), ".")
	}
	if ext == "" {
		ext = "mp4"
	}
	mediaName := title + "." + ext

	if res.CaptionFile != "" && subtitleLang != "" {
		zipName := title + ".zip"
		zipPath := filepath.Join(filepath.Dir(res.PrimaryFile), zipName)
		size, err := zip.BundleFiles(zipPath, []zip.Entry{
			{Name: mediaName, Path: res.PrimaryFile},
			{Name: title + "." + subtitleLang + filepath.Ext(res.CaptionFile), Path: res.CaptionFile},
		})
		if err != nil {
			return nil, fmt.Errorf("bundle captions: %w", err)
		}
		return &domain.Artifact{
			Path:     zipPath,
			Filename: zipName,
			Size:     size,
			MimeType: retrieval.MimeTypeFor("zip"),
		}, nil
	}

	info, err := os.Stat(res.PrimaryFile)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &domain.Artifact{
		Path:     res.PrimaryFile,
		Filename: mediaName,
		Size:     info.Size(),
		MimeType: retrieval.MimeTypeFor(ext),
	}, nil
}
