package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fetchd/internal/domain"
	"fetchd/internal/jobs"
	"fetchd/internal/retrieval"
)

type submitRequest struct {
	URL          string `json:"url"`
	FormatID     string `json:"format_id"`
	SubtitleLang string `json:"subtitle_lang"`
	// Subtitle is the caption key used by older clients.
	Subtitle string `json:"subtitle"`
}

func (s submitRequest) toJob() jobs.SubmitRequest {
	lang := s.SubtitleLang
	if lang == "" {
		lang = s.Subtitle
	}
	return jobs.SubmitRequest{
		URL:          s.URL,
		FormatID:     strings.TrimSpace(s.FormatID),
		SubtitleLang: strings.TrimSpace(lang),
	}
}

// progressResponse is the status-shaped body of the progress endpoint.
type progressResponse struct {
	Status          string   `json:"status"`
	Progress        *float64 `json:"progress,omitempty"`
	DownloadedBytes *int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      *int64   `json:"total_bytes,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	ETA             *int64   `json:"eta,omitempty"`
	Filename        string   `json:"filename,omitempty"`
	Filesize        *int64   `json:"filesize,omitempty"`
	Error           string   `json:"error,omitempty"`
}

const expiredMessage = "artifact was already downloaded"

// SubmitJob answers 202 {id}.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, "id")
}

// StartDownload is the legacy spelling of SubmitJob and answers {task_id}.
func (a *App) StartDownload(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, "task_id")
}

func (a *App) submit(w http.ResponseWriter, r *http.Request, idKey string) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := a.Dispatcher.Submit(r.Context(), req.toJob())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{idKey: id})
}

func (a *App) JobProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	a.json(w, http.StatusOK, progressOf(job))
}

func progressOf(job *domain.Job) progressResponse {
	if job.Status == domain.JobStatusCompleted && job.Consumed() {
		return progressResponse{Status: "expired", Error: expiredMessage}
	}
	resp := progressResponse{Status: string(job.Status), Progress: domain.Ptr(job.Progress)}
	switch job.Status {
	case domain.JobStatusDownloading:
		resp.DownloadedBytes = domain.Ptr(job.DownloadedBytes)
		resp.TotalBytes = domain.Ptr(job.TotalBytes)
		resp.Speed = domain.Ptr(job.Speed)
		resp.ETA = domain.Ptr(job.ETA)
	case domain.JobStatusCompleted:
		if job.Artifact != nil {
			resp.Filename = job.Artifact.Filename
			resp.Filesize = domain.Ptr(job.Artifact.Size)
		}
	case domain.JobStatusFailed:
		resp.Error = job.Error
		if resp.Error == "" {
			resp.Error = "unknown error"
		}
	}
	return resp
}

// JobArtifact streams the artifact to its single consumer. The file is
// opened before the consume so a concurrent sweep cannot pull it away
// mid-response.
func (a *App) JobArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := a.Store.Get(r.Context(), id)
	switch {
	case !ok:
		a.fail(w, r, domain.ErrNotFound)
		return
	case job.Status != domain.JobStatusCompleted || job.Artifact == nil:
		a.fail(w, r, domain.ErrNotReady)
		return
	case job.Consumed():
		a.fail(w, r, domain.ErrGone)
		return
	}

	f, err := os.Open(job.Artifact.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.fail(w, r, domain.ErrNotFound)
			return
		}
		a.fail(w, r, fmt.Errorf("open artifact %s: %w", id, err))
		return
	}
	defer f.Close()

	artifact, err := a.Delivery.Consume(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Str("job_id", id).Str("filename", artifact.Filename).Msg("artifact delivered")
	a.stream(w, r, f, artifact)
}

// Retrieve runs a fetch inside the request and streams the result. Nothing
// is recorded in the store.
func (a *App) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	artifact, cleanup, err := a.Dispatcher.RetrieveNow(r.Context(), req.toJob())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer cleanup()

	f, err := os.Open(artifact.Path)
	if err != nil {
		a.fail(w, r, fmt.Errorf("open retrieved artifact: %w", err))
		return
	}
	defer f.Close()
	a.stream(w, r, f, artifact)
}

func (a *App) stream(w http.ResponseWriter, r *http.Request, f *os.File, artifact *domain.Artifact) {
	h := w.Header()
	h.Set("Content-Type", artifact.MimeType)
	h.Set("Content-Disposition", contentDisposition(artifact.Filename))
	if info, err := f.Stat(); err == nil {
		h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		a.Logger.Warn().Err(err).Str("filename", artifact.Filename).Msg("artifact stream interrupted")
	}
}

// contentDisposition builds an RFC 6266 attachment header with an ASCII
// fallback and a UTF-8 filename* parameter.
func contentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		retrieval.ASCIIFilename(name), encodeExtValue(name))
}

// encodeExtValue percent-encodes everything outside RFC 5987 attr-char.
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
