package portals

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeRepo struct {
	mu      sync.Mutex
	saved   []Portal
	seed    []Portal
	loadErr error
	saveErr error
	saves   int
}

func (r *fakeRepo) SaveAll(portals []Portal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append([]Portal(nil), portals...)
	return nil
}

func (r *fakeRepo) LoadAll() ([]Portal, error) {
	return r.seed, r.loadErr
}

func (r *fakeRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func newTestManager(t *testing.T) (*Manager, *fakeRepo) {
	t.Helper()
	repo := &fakeRepo{}
	m, err := NewManager(repo, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, repo
}

func TestNewManager_LoadsCatalog(t *testing.T) {
	repo := &fakeRepo{seed: []Portal{{ID: "p1", Name: "Seeded", Domains: []string{"seeded.com"}}}}
	m, err := NewManager(repo, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if got := m.All(); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("All() = %v", got)
	}
}

func TestNewManager_LoadError(t *testing.T) {
	repo := &fakeRepo{loadErr: errors.New("corrupt catalog")}
	if _, err := NewManager(repo, testLogger()); err == nil {
		t.Error("NewManager swallowed the load error")
	}
}

func TestAdd(t *testing.T) {
	m, repo := newTestManager(t)

	p := m.Add("Example Videos", []string{"Example.com", "www.example.com", "videos.example.com"}, "https://example.com/v")
	if p.ID == "" {
		t.Error("added portal has no ID")
	}
	if p.Name != "Example Videos" {
		t.Errorf("Name = %q", p.Name)
	}
	// hosts normalize and the www duplicate collapses
	if len(p.Domains) != 2 || p.Domains[0] != "example.com" || p.Domains[1] != "videos.example.com" {
		t.Errorf("Domains = %v", p.Domains)
	}
	if p.AddedAt.IsZero() {
		t.Error("AddedAt not set")
	}
	if repo.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", repo.saveCount())
	}
}

func TestAdd_ReturnsExistingOnOverlap(t *testing.T) {
	m, repo := newTestManager(t)

	first := m.Add("Example", []string{"example.com"}, "")
	second := m.Add("Other Name", []string{"other.net", "example.com"}, "")

	if second.ID != first.ID {
		t.Errorf("overlapping Add created a new portal %q", second.ID)
	}
	if len(m.All()) != 1 {
		t.Errorf("catalog len = %d, want 1", len(m.All()))
	}
	if repo.saveCount() != 1 {
		t.Errorf("saves = %d, want 1 (no persist on duplicate)", repo.saveCount())
	}
}

func TestAdd_EmptyNameFallsBackToDomain(t *testing.T) {
	m, _ := newTestManager(t)
	p := m.Add("", []string{"media.site.org"}, "")
	if p.Name != "media.site.org" {
		t.Errorf("Name = %q, want the first domain", p.Name)
	}
}

func TestGet(t *testing.T) {
	m, _ := newTestManager(t)
	p := m.Add("Example", []string{"example.com"}, "")

	got, ok := m.Get(p.ID)
	if !ok || got.Name != "Example" {
		t.Errorf("Get = (%+v, %v)", got, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) found something")
	}
}

func TestFindByDomain(t *testing.T) {
	m, _ := newTestManager(t)
	p := m.Add("Example", []string{"example.com"}, "")

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"EXAMPLE.COM", true},
		{"videos.example.com", false},
		{"other.net", false},
		{"", false},
	}
	for _, tt := range tests {
		got, ok := m.FindByDomain(tt.host)
		if ok != tt.want {
			t.Errorf("FindByDomain(%q) = %v, want %v", tt.host, ok, tt.want)
		}
		if ok && got.ID != p.ID {
			t.Errorf("FindByDomain(%q) returned portal %q", tt.host, got.ID)
		}
	}
}

func TestSearch(t *testing.T) {
	m, _ := newTestManager(t)
	m.Add("Example Videos", []string{"example.com"}, "")
	m.Add("Sound Host", []string{"soundhost.io"}, "")

	tests := []struct {
		query string
		want  int
	}{
		{"example", 1},
		{"EXAMPLE", 1},
		{"sound", 1},
		{"host", 1},
		{".io", 1},
		{"o", 2},
		{"zzz", 0},
		{"", 2},
		{"   ", 2},
	}
	for _, tt := range tests {
		if got := m.Search(tt.query); len(got) != tt.want {
			t.Errorf("Search(%q) found %d, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestRemove(t *testing.T) {
	m, repo := newTestManager(t)
	p := m.Add("Example", []string{"example.com"}, "")

	if !m.Remove(p.ID) {
		t.Fatal("Remove returned false")
	}
	if len(m.All()) != 0 {
		t.Error("portal still in catalog")
	}
	if m.Remove(p.ID) {
		t.Error("double Remove returned true")
	}
	if repo.saveCount() != 2 {
		t.Errorf("saves = %d, want 2 (add + remove)", repo.saveCount())
	}
}

func TestObserveURL(t *testing.T) {
	m, _ := newTestManager(t)

	m.ObserveURL("https://www.newsite.org/watch?v=1")
	p, ok := m.FindByDomain("newsite.org")
	if !ok {
		t.Fatal("observed host not registered")
	}
	if p.Name != "newsite.org" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Example != "https://www.newsite.org/watch?v=1" {
		t.Errorf("Example = %q", p.Example)
	}

	// same host again stays a single portal
	m.ObserveURL("https://newsite.org/watch?v=2")
	if got := len(m.All()); got != 1 {
		t.Errorf("catalog len = %d after repeat observation, want 1", got)
	}
}

func TestObserveURL_IgnoresUnparseable(t *testing.T) {
	m, _ := newTestManager(t)
	m.ObserveURL("://no-scheme")
	m.ObserveURL("relative/path")
	m.ObserveURL("")
	if got := len(m.All()); got != 0 {
		t.Errorf("catalog len = %d, want 0", got)
	}
}

func TestPersistFailureKeepsCatalog(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("disk full")}
	m, err := NewManager(repo, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	p := m.Add("Example", []string{"example.com"}, "")
	if _, ok := m.Get(p.ID); !ok {
		t.Error("failed persist dropped the in-memory portal")
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"www.example.com", "example.com"},
		{" example.com ", "example.com"},
		{"example.com/path", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeHost(tt.in); got != tt.want {
			t.Errorf("normalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

