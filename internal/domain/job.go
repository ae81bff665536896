package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// IsTerminal reports whether the status only awaits reclamation.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsLive reports whether a unit of work may still be running for the job.
func (s JobStatus) IsLive() bool {
	return s == JobStatusPending || s == JobStatusDownloading || s == JobStatusProcessing
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusDownloading || next == JobStatusFailed
	case JobStatusDownloading:
		return next == JobStatusDownloading || next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Artifact describes the deliverable file of a completed job. Path is never
// exposed to clients.
type Artifact struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Job is the persisted record of one submitted retrieval.
type Job struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	FormatID     string    `json:"format_id,omitempty"`
	SubtitleLang string    `json:"subtitle_lang,omitempty"`
	Status       JobStatus `json:"status"`

	Progress        float64 `json:"progress"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           float64 `json:"speed"`
	ETA             int64   `json:"eta"`

	Artifact *Artifact `json:"artifact,omitempty"`
	Error    string    `json:"error,omitempty"`

	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ConsumptionCount int        `json:"consumption_count"`
	WorkDir          string     `json:"work_dir,omitempty"`
}

// Consumed reports whether the artifact has already been handed out.
func (j *Job) Consumed() bool {
	return j.ConsumptionCount > 0
}

// JobPatch is a partial update. Nil fields are left untouched on merge.
type JobPatch struct {
	Status          *JobStatus
	Progress        *float64
	DownloadedBytes *int64
	TotalBytes      *int64
	Speed           *float64
	ETA             *int64
	Artifact        *Artifact
	Error           *string
	CompletedAt     *time.Time
	WorkDir         *string
}

// Apply shallow-merges the non-nil fields of p into j.
func (p JobPatch) Apply(j *Job) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.DownloadedBytes != nil {
		j.DownloadedBytes = *p.DownloadedBytes
	}
	if p.TotalBytes != nil {
		j.TotalBytes = *p.TotalBytes
	}
	if p.Speed != nil {
		j.Speed = *p.Speed
	}
	if p.ETA != nil {
		j.ETA = *p.ETA
	}
	if p.Artifact != nil {
		a := *p.Artifact
		j.Artifact = &a
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		j.CompletedAt = &t
	}
	if p.WorkDir != nil {
		j.WorkDir = *p.WorkDir
	}
}

// Ptr returns a pointer to v. It keeps JobPatch literals short.
func Ptr[T any](v T) *T {
	return &v
}
