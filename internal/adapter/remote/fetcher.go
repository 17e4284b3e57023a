package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
)

// DefaultPollInterval is how often the status of a server-side job is polled.
const DefaultPollInterval = 5 * time.Second

// Fetcher delegates downloads to a remote yt-dlp server: it submits the URL,
// polls job status until the source fetch terminates, then retrieves the
// artifact. The remote-terminal point surfaces as a source-complete progress
// tick, so the job passes through the finished state before downloaded.
type Fetcher struct {
	baseURL  string
	dir      string
	client   *http.Client
	interval time.Duration
	log      *logrus.Logger
}

// New creates a fetcher against the server at baseURL, saving artifacts
// into dir.
func New(baseURL, dir string, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		dir:      dir,
		client:   &http.Client{},
		interval: DefaultPollInterval,
		log:      log,
	}
}

// SetPollInterval overrides the status polling interval.
func (f *Fetcher) SetPollInterval(d time.Duration) {
	if d > 0 {
		f.interval = d
	}
}

// Probe is a no-op: the server protocol has no metadata endpoint, so jobs
// skip the title extraction step.
func (f *Fetcher) Probe(ctx context.Context, url string) (string, error) {
	return "", nil
}

type submitResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type statusResponse struct {
	Status   string   `json:"status"`
	Output   string   `json:"output"`
	Error    string   `json:"error"`
	Files    []string `json:"files"`
	Progress struct {
		Downloaded int64   `json:"downloaded"`
		Total      int64   `json:"total"`
		Speed      float64 `json:"speed"`
	} `json:"progress"`
}

// Fetch submits the URL, polls until the server reports a terminal status,
// and on success retrieves the artifact.
func (f *Fetcher) Fetch(ctx context.Context, req domain.FetchRequest, progress func(domain.Progress)) (*domain.FetchResult, error) {
	remoteID, err := f.submit(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	log := f.log.WithFields(logrus.Fields{"job": req.JobID, "remote": remoteID})
	log.Debug("submitted to remote server")

	status, err := f.pollUntilTerminal(ctx, remoteID, progress)
	if err != nil {
		return nil, err
	}
	if status.Status == "error" {
		msg := status.Error
		if msg == "" {
			msg = "remote download failed"
		}
		return nil, fmt.Errorf("remote: %s", msg)
	}

	// Source fetch is done; the artifact is not local yet.
	progress(domain.Progress{Percent: 100, SourceComplete: true, Message: "Fetched at server, retrieving..."})

	name, err := f.retrieve(ctx, remoteID, status.Files)
	if err != nil {
		return nil, err
	}

	files := status.Files
	if len(files) == 0 {
		files = []string{name}
	}
	return &domain.FetchResult{
		Files:    files,
		LocalURI: "file://" + filepath.Join(f.dir, name),
	}, nil
}

func (f *Fetcher) submit(ctx context.Context, url string) (string, error) {
	body, _ := json.Marshal(map[string]string{"url": url})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/download", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", domain.NewFetchError(domain.CategoryNetwork, fmt.Sprintf("cannot reach download server: %v", err))
	}
	defer resp.Body.Close()

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if resp.StatusCode >= 400 || sr.JobID == "" {
		msg := sr.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("remote submit rejected: %s", msg)
	}
	return sr.JobID, nil
}

// pollUntilTerminal polls /status/{id} on the fixed interval and stops
// exactly once, on the first terminal status observed.
func (f *Fetcher) pollUntilTerminal(ctx context.Context, remoteID string, progress func(domain.Progress)) (*statusResponse, error) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		status, err := f.status(ctx, remoteID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		switch status.Status {
		case "finished", "error":
			return status, nil
		case "downloading":
			p := domain.Progress{ETASeconds: -1}
			if status.Progress.Total > 0 {
				p.Percent = float64(status.Progress.Downloaded) / float64(status.Progress.Total) * 100
			}
			progress(p)
		default:
			// queued or running on the server side
			progress(domain.Progress{ETASeconds: -1, Message: "Waiting for server..."})
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *Fetcher) status(ctx context.Context, remoteID string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/status/"+remoteID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(domain.CategoryNetwork, fmt.Sprintf("status poll failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewFetchError(domain.CategoryNotFound, "remote job vanished")
	}
	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &sr, nil
}

// retrieve streams /file/{id} to the download directory and returns the
// stored file name: the Content-Disposition name when present, else the
// server-reported file, else the remote job ID.
func (f *Fetcher) retrieve(ctx context.Context, remoteID string, serverFiles []string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/file/"+remoteID, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", domain.NewFetchError(domain.CategoryNetwork, fmt.Sprintf("file retrieval failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote file not available: %s", resp.Status)
	}

	name := dispositionName(resp.Header.Get("Content-Disposition"))
	if name == "" && len(serverFiles) > 0 {
		name = filepath.Base(serverFiles[0])
	}
	if name == "" {
		name = remoteID
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", domain.NewFetchError(domain.CategoryStorage, fmt.Sprintf("cannot create download directory: %v", err))
	}
	dst := filepath.Join(f.dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", domain.NewFetchError(domain.CategoryStorage, fmt.Sprintf("cannot create %s: %v", name, err))
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dst)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.NewFetchError(domain.CategoryNetwork, fmt.Sprintf("file transfer interrupted: %v", err))
	}
	return name, nil
}

func dispositionName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil || params["filename"] == "" {
		return ""
	}
	return filepath.Base(params["filename"])
}
