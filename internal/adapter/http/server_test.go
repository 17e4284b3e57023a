package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
	"github.com/elteam/everyload/internal/download"
	"github.com/elteam/everyload/internal/portals"
	"github.com/elteam/everyload/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type memSnap struct{}

func (memSnap) Save(jobs []domain.Job) error { return nil }
func (memSnap) Load() ([]domain.Job, error)  { return nil, nil }

type memPortalRepo struct{}

func (memPortalRepo) SaveAll(list []portals.Portal) error { return nil }
func (memPortalRepo) LoadAll() ([]portals.Portal, error)  { return nil, nil }

// gatedFetcher blocks every fetch until the gate closes.
type gatedFetcher struct {
	gate  chan struct{}
	files []string
}

func (f *gatedFetcher) Probe(ctx context.Context, url string) (string, error) { return "", nil }

func (f *gatedFetcher) Fetch(ctx context.Context, req domain.FetchRequest, progress func(domain.Progress)) (*domain.FetchResult, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.FetchResult{Files: f.files}, nil
}

func newTestServer(t *testing.T, fetcher domain.Fetcher) *Server {
	t.Helper()
	st, err := store.New(memSnap{}, testLogger())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	pm, err := portals.NewManager(memPortalRepo{}, testLogger())
	if err != nil {
		t.Fatalf("portals.NewManager: %v", err)
	}
	svc := download.NewService(st, fetcher, download.Config{
		MaxConcurrent: 2,
		Policy:        domain.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Observer:      pm,
	}, testLogger())
	return NewServer(svc, pm, ":0", testLogger())
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var job jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v (%s)", err, rec.Body.String())
	}
	return job
}

func TestSubmitJob(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	rec := doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/v"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	job := decodeJob(t, rec)
	if job.ID == "" || job.URL != "https://example.com/v" {
		t.Errorf("job = %+v", job)
	}
	if job.Status != "queued" {
		t.Errorf("status = %q, want queued", job.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSubmitJob_Errors(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing url", `{}`, http.StatusBadRequest},
		{"invalid url", `{"url":"not a url"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/jobs", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	// duplicate active URL conflicts
	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/dup"}`)
	rec := doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/dup"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate submit status = %d, want 409", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/a"}`)
	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/b"}`)

	rec := doRequest(t, srv, http.MethodGet, "/jobs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var jobs []jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].URL != "https://example.com/b" {
		t.Errorf("position 0 URL = %q, want the newest submission", jobs[0].URL)
	}
}

func TestListJobs_Filtered(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://videos.example.com/a"}`)
	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://soundhost.io/b"}`)

	rec := doRequest(t, srv, http.MethodGet, "/jobs?domain=example.com", "")
	var jobs []jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || !strings.Contains(jobs[0].URL, "example.com") {
		t.Errorf("filtered jobs = %v", jobs)
	}

	rec = doRequest(t, srv, http.MethodGet, "/jobs?q=nomatch-xyz", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("query with no matches returned %d jobs", len(jobs))
	}
	if !strings.HasPrefix(rec.Body.String(), "[") {
		t.Errorf("empty list did not encode as a JSON array: %s", rec.Body.String())
	}
}

func TestGetJob(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	created := decodeJob(t, doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/a"}`))

	rec := doRequest(t, srv, http.MethodGet, "/jobs/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeJob(t, rec); got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}

	rec = doRequest(t, srv, http.MethodGet, "/jobs/job_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}
}

func TestStopJob(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	created := decodeJob(t, doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/a"}`))

	rec := doRequest(t, srv, http.MethodPost, "/jobs/"+created.ID+"/stop", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("stop status = %d, want 204", rec.Code)
	}

	got := decodeJob(t, doRequest(t, srv, http.MethodGet, "/jobs/"+created.ID, ""))
	if got.Status != "stopped" {
		t.Errorf("status = %q after stop, want stopped", got.Status)
	}

	// stopping again conflicts, the job is terminal now
	rec = doRequest(t, srv, http.MethodPost, "/jobs/"+created.ID+"/stop", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second stop status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/jobs/job_missing/stop", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing stop status = %d, want 404", rec.Code)
	}
}

func TestRemoveJob(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	created := decodeJob(t, doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/a"}`))

	rec := doRequest(t, srv, http.MethodDelete, "/jobs/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/jobs/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted job still served: %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/jobs/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}
}

func TestClearJobs(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/a"}`)
	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://example.com/b"}`)

	rec := doRequest(t, srv, http.MethodDelete, "/jobs", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}

	var jobs []jobResponse
	rec = doRequest(t, srv, http.MethodGet, "/jobs", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("%d jobs remain after clear", len(jobs))
	}
}

func TestPortals(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	rec := doRequest(t, srv, http.MethodPost, "/portals", `{"name":"Example","domains":["example.com"],"example":"https://example.com/v"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add portal status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created portalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Name != "Example" {
		t.Errorf("portal = %+v", created)
	}

	rec = doRequest(t, srv, http.MethodPost, "/portals", `{"name":"NoDomains"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("portal without domains status = %d, want 400", rec.Code)
	}

	var list []portalResponse
	rec = doRequest(t, srv, http.MethodGet, "/portals", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("portal list len = %d, want 1", len(list))
	}

	rec = doRequest(t, srv, http.MethodGet, "/portals?q=exam", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("portal search found %d, want 1", len(list))
	}

	rec = doRequest(t, srv, http.MethodDelete, "/portals/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("remove portal status = %d, want 204", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, "/portals/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("remove missing portal status = %d, want 404", rec.Code)
	}
}

func TestPortals_AutoRegisteredOnSubmit(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, &gatedFetcher{gate: gate})
	defer close(gate)

	doRequest(t, srv, http.MethodPost, "/jobs", `{"url":"https://media.newsite.org/clip"}`)

	var list []portalResponse
	rec := doRequest(t, srv, http.MethodGet, "/portals", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, p := range list {
		for _, d := range p.Domains {
			if d == "media.newsite.org" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("submitted host not auto-registered, portals = %v", list)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &gatedFetcher{})
	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSplitParam(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"mp4", []string{"mp4"}},
		{"mp4,webm", []string{"mp4", "webm"}},
		{" mp4 , webm ,", []string{"mp4", "webm"}},
	}
	for _, tt := range tests {
		got := splitParam(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitParam(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitParam(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

