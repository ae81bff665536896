// Package retrieval wraps the external media fetcher behind a small
// interface. Everything the job subsystem needs from a fetch goes through
// Retriever; the rest of the package is the naming and metadata shaping
// that sits around it.
package retrieval

import (
	"context"
	"errors"
)

// ErrRetrieval marks failures reported by the fetcher itself: network,
// extraction or an unavailable format.
var ErrRetrieval = errors.New("retrieval failed")

// Progress is one telemetry sample. Finished is sent once, after the fetch
// has produced its output.
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64
	ETA             int64
	Finished        bool
}

// Request describes one fetch into OutputDir. Progress may be nil.
type Request struct {
	URL          string
	FormatID     string
	SubtitleLang string
	OutputDir    string
	Progress     chan<- Progress
}

// Result locates the files a fetch produced.
type Result struct {
	PrimaryFile string
	CaptionFile string
	Title       string
	Extension   string
	Size        int64
}

// Retriever fetches remote media. Implementations must not send on
// Request.Progress after Retrieve returns.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) (*Result, error)
	Metadata(ctx context.Context, url string) (*Metadata, error)
}
