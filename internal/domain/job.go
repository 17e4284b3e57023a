package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusExtracting  Status = "extracting"
	StatusDownloading Status = "downloading"
	// StatusFinished means the fetch succeeded at the source but the
	// artifact has not been stored locally yet. Only the server-backed
	// fetcher passes through this state.
	StatusFinished   Status = "finished"
	StatusDownloaded Status = "downloaded"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no further automatic transition occurs.
func (s Status) IsTerminal() bool {
	return s == StatusDownloaded || s == StatusError || s == StatusStopped
}

// IsActive returns true while a fetch is in flight for the job.
func (s Status) IsActive() bool {
	return s == StatusExtracting || s == StatusDownloading || s == StatusFinished
}

// Job is one user-requested download and its tracked state. Values are
// immutable snapshots: every mutation produces a fresh copy through the
// store, never an in-place write shared across goroutines.
type Job struct {
	ID       string
	URL      string
	Title    string
	Status   Status
	Info     string
	Files    []string
	LocalURI string
	// Triggered flips to true exactly once, when a download attempt is
	// dispatched. It is never reset; re-submitting a URL creates a new job.
	Triggered bool
	// Generation is bumped on dispatch and on cancel. Terminal outcomes
	// carry the generation they were dispatched under; stale outcomes are
	// discarded.
	Generation uint64
	CreatedAt  time.Time
}

// NewJob creates a queued job for the given URL.
func NewJob(url string) Job {
	return Job{
		ID:        NewJobID(),
		URL:       url,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
}

// NewJobID returns a unique job identifier. IDs are never reused.
func NewJobID() string {
	return "job_" + uuid.NewString()
}

// ShortID returns the trailing 8 characters of the job ID, used to keep
// output filenames collision-free.
func (j Job) ShortID() string {
	if len(j.ID) <= 8 {
		return j.ID
	}
	return j.ID[len(j.ID)-8:]
}

// DisplayTitle returns the title when known, otherwise the URL.
func (j Job) DisplayTitle() string {
	if j.Title != "" && !strings.HasPrefix(j.Title, "http") {
		return j.Title
	}
	return j.URL
}

// WithStatus returns a copy with the status replaced.
func (j Job) WithStatus(s Status) Job {
	j.Status = s
	return j
}

// WithInfo returns a copy with the info text replaced.
func (j Job) WithInfo(info string) Job {
	j.Info = info
	return j
}
