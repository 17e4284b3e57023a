package domain

import "context"

// Progress is one tick of a running fetch.
type Progress struct {
	Percent    float64
	ETASeconds int
	Message    string
	// SourceComplete marks the point where the fetch succeeded at the
	// source but the artifact is not yet stored locally.
	SourceComplete bool
}

// FetchOptions carries the user-configured download preferences.
type FetchOptions struct {
	Format         string
	Quality        string
	AllowPlaylists bool
}

// FetchRequest describes one download to perform.
type FetchRequest struct {
	JobID   string
	URL     string
	Title   string
	Options FetchOptions
}

// FetchResult is the terminal success payload of a fetch.
type FetchResult struct {
	Files    []string
	LocalURI string
}

// Fetcher is the driven port for the actual media retrieval. Fetch blocks
// its caller for the duration of the transfer; progress callbacks must not
// block the fetch. Cancellation is cooperative through the context.
type Fetcher interface {
	// Probe extracts the media title without downloading. Failures are
	// tolerated by callers; an empty title is a valid answer.
	Probe(ctx context.Context, url string) (string, error)
	Fetch(ctx context.Context, req FetchRequest, progress func(Progress)) (*FetchResult, error)
}

// Snapshotter is the driven port for durable job persistence. Save replaces
// the previous snapshot atomically with the full current job set in display
// order.
type Snapshotter interface {
	Save(jobs []Job) error
	Load() ([]Job, error)
}

// JobListener observes store mutations. Callbacks run synchronously after
// the mutation has been persisted, in registration order.
type JobListener interface {
	OnJobAdded(job Job, position int)
	OnJobUpdated(job Job, position int)
	OnJobRemoved(id string, position int)
	OnJobsCleared()
}
