package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"
)

// YtdlpOptions configures the yt-dlp command line shared by every call.
type YtdlpOptions struct {
	Binary           string
	CookiesFile      string
	ProxyURL         string
	ProgressInterval time.Duration
}

// YtdlpRetriever runs yt-dlp through go-ytdlp.
type YtdlpRetriever struct {
	opts   YtdlpOptions
	logger zerolog.Logger
}

func NewYtdlpRetriever(opts YtdlpOptions, logger zerolog.Logger) *YtdlpRetriever {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	return &YtdlpRetriever{opts: opts, logger: logger.With().Str("component", "ytdlp").Logger()}
}

func (y *YtdlpRetriever) command() *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		NoWarnings().
		NoCheckCertificates()
	if y.opts.Binary != "" {
		dl.SetExecutable(y.opts.Binary)
	}
	if y.opts.CookiesFile != "" {
		if _, err := os.Stat(y.opts.CookiesFile); err == nil {
			dl.Cookies(y.opts.CookiesFile)
		}
	}
	if y.opts.ProxyURL != "" {
		dl.Proxy(y.opts.ProxyURL)
	}
	return dl
}

// Retrieve downloads req.URL into req.OutputDir.
func (y *YtdlpRetriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	sink := newProgressSink(req.Progress)
	defer sink.close()

	selector, merge := FormatSelector(req.FormatID)
	dl := y.command().
		ForceOverwrites().
		RestrictFilenames().
		Format(selector).
		Output(filepath.Join(req.OutputDir, "%(id)s.%(ext)s"))
	if merge != "" {
		dl.MergeOutputFormat(merge)
	}
	if req.SubtitleLang != "" {
		dl.WriteSubs().WriteAutoSubs().SubLangs(req.SubtitleLang)
	}
	dl.ProgressFunc(y.opts.ProgressInterval, func(update ytdlp.ProgressUpdate) {
		if update.Status == ytdlp.ProgressStatusFinished {
			// one per stream; the overall finish is sent after Run
			return
		}
		sink.send(progressFrom(update))
	})

	y.logger.Debug().Str("url", req.URL).Str("format", selector).Msg("retrieve start")
	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrRetrieval, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrRetrieval, describeFailure(err, result))
	}

	var raw rawInfo
	if infos, err := result.GetExtractedInfo(); err == nil && len(infos) > 0 {
		if data, err := json.Marshal(infos[0]); err == nil {
			_ = json.Unmarshal(data, &raw)
		}
	}

	primary := raw.outputPath()
	if primary == "" || !fileExists(primary) {
		if primary, err = findPrimary(req.OutputDir); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
		}
	}
	info, err := os.Stat(primary)
	if err != nil {
		return nil, fmt.Errorf("%w: output missing: %v", ErrRetrieval, err)
	}

	title := raw.Title
	if title == "" {
		title = defaultName
	}
	res := &Result{
		PrimaryFile: primary,
		CaptionFile: FindCaption(primary, req.SubtitleLang),
		Title:       title,
		Extension:   strings.TrimPrefix(filepath.Ext(primary), "."),
		Size:        info.Size(),
	}
	sink.send(Progress{DownloadedBytes: res.Size, TotalBytes: res.Size, Finished: true})
	y.logger.Debug().Str("url", req.URL).Int64("size", res.Size).Msg("retrieve done")
	return res, nil
}

// Metadata extracts descriptive info without downloading.
func (y *YtdlpRetriever) Metadata(ctx context.Context, url string) (*Metadata, error) {
	dl := y.command().SkipDownload().DumpSingleJSON()
	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRetrieval, describeFailure(err, result))
	}
	var raw rawInfo
	if err := json.Unmarshal([]byte(result.Stdout), &raw); err != nil {
		return nil, fmt.Errorf("%w: decode info: %v", ErrRetrieval, err)
	}
	return buildMetadata(&raw), nil
}

func progressFrom(u ytdlp.ProgressUpdate) Progress {
	p := Progress{
		DownloadedBytes: int64(u.DownloadedBytes),
		TotalBytes:      int64(u.TotalBytes),
	}
	if !u.Started.IsZero() {
		if elapsed := time.Since(u.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(u.DownloadedBytes) / elapsed
		}
	}
	if eta := u.ETA(); eta > 0 {
		p.ETA = int64(eta.Seconds())
	}
	return p
}

// describeFailure keeps the last stderr line, which is where yt-dlp puts
// its ERROR: message.
func describeFailure(err error, result *ytdlp.Result) string {
	if result != nil {
		lines := strings.Split(strings.TrimSpace(result.Stderr), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if line := strings.TrimSpace(lines[i]); line != "" {
				return strings.TrimPrefix(line, "ERROR: ")
			}
		}
	}
	return err.Error()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// progressSink forwards samples to a caller channel and stops forwarding
// for good once closed, so late callbacks cannot race a channel close.
type progressSink struct {
	mu     sync.Mutex
	ch     chan<- Progress
	closed bool
}

func newProgressSink(ch chan<- Progress) *progressSink {
	return &progressSink{ch: ch}
}

// send drops intermediate samples when the buffer is full. The finish
// sample is always delivered.
func (s *progressSink) send(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ch == nil {
		return
	}
	if p.Finished {
		s.ch <- p
		return
	}
	select {
	case s.ch <- p:
	default:
	}
}

func (s *progressSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

var _ Retriever = (*YtdlpRetriever)(nil)
