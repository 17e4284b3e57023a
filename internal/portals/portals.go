package portals

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Portal is a known media source (e.g. a video site) and the hosts it is
// reachable under.
type Portal struct {
	ID      string
	Name    string
	Domains []string
	Example string
	AddedAt time.Time
}

// Repository is the driven port for portal persistence. SaveAll replaces
// the stored list wholesale, mirroring the job snapshot contract.
type Repository interface {
	SaveAll(portals []Portal) error
	LoadAll() ([]Portal, error)
}

// Manager keeps the portal catalog: a small keyed list with host lookup and
// substring search.
type Manager struct {
	mu      sync.RWMutex
	portals []Portal
	repo    Repository
	log     *logrus.Logger
}

// NewManager loads the catalog from the repository.
func NewManager(repo Repository, log *logrus.Logger) (*Manager, error) {
	portals, err := repo.LoadAll()
	if err != nil {
		return nil, err
	}
	return &Manager{portals: portals, repo: repo, log: log}, nil
}

// All returns the catalog in insertion order.
func (m *Manager) All() []Portal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Portal, len(m.portals))
	copy(out, m.portals)
	return out
}

// Get returns the portal with the given ID.
func (m *Manager) Get(id string) (Portal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.portals {
		if p.ID == id {
			return p, true
		}
	}
	return Portal{}, false
}

// FindByDomain returns the portal covering the given host, if any.
func (m *Manager) FindByDomain(host string) (Portal, bool) {
	h := normalizeHost(host)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByDomainLocked(h)
}

func (m *Manager) findByDomainLocked(h string) (Portal, bool) {
	if h == "" {
		return Portal{}, false
	}
	for _, p := range m.portals {
		for _, d := range p.Domains {
			if normalizeHost(d) == h {
				return p, true
			}
		}
	}
	return Portal{}, false
}

// Search returns portals whose name or domains contain the query as a
// case-insensitive substring.
func (m *Manager) Search(query string) []Portal {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return m.All()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Portal
	for _, p := range m.portals {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
			continue
		}
		for _, d := range p.Domains {
			if strings.Contains(strings.ToLower(d), q) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Add registers a portal. When one of the hosts is already covered, the
// existing portal is returned instead of creating a duplicate.
func (m *Manager) Add(name string, domains []string, example string) Portal {
	normalized := make([]string, 0, len(domains))
	seen := make(map[string]struct{})
	for _, d := range domains {
		h := normalizeHost(d)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		normalized = append(normalized, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range normalized {
		if existing, ok := m.findByDomainLocked(h); ok {
			return existing
		}
	}

	if name == "" {
		if len(normalized) > 0 {
			name = normalized[0]
		} else {
			name = "unknown"
		}
	}

	portal := Portal{
		ID:      uuid.NewString(),
		Name:    name,
		Domains: normalized,
		Example: example,
		AddedAt: time.Now(),
	}
	m.portals = append(m.portals, portal)
	m.persistLocked()
	return portal
}

// Remove deletes the portal with the given ID.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.portals {
		if p.ID == id {
			m.portals = append(m.portals[:i], m.portals[i+1:]...)
			m.persistLocked()
			return true
		}
	}
	return false
}

// ObserveURL registers the URL's host as a portal when it is not covered
// yet. Used by the download service on submit.
func (m *Manager) ObserveURL(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return
	}
	host := normalizeHost(u.Hostname())
	if _, ok := m.FindByDomain(host); ok {
		return
	}
	m.Add(host, []string{host}, rawURL)
}

func (m *Manager) persistLocked() {
	if err := m.repo.SaveAll(m.portals); err != nil {
		m.log.WithError(err).Error("failed to persist portals")
	}
}

func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimPrefix(h, "www.")
	if i := strings.IndexByte(h, '/'); i >= 0 {
		h = h[:i]
	}
	return h
}
