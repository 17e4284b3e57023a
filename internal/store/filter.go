package store

import (
	"net/url"
	"path"
	"strings"

	"github.com/elteam/everyload/internal/domain"
)

// FilterQuery narrows the job list. All non-empty terms are AND'ed together.
type FilterQuery struct {
	// Query is matched as a case-insensitive substring against the job
	// title, URL and result file names.
	Query string
	// Extensions limits jobs to those whose files, URL or local artifact
	// carry one of the given file extensions (leading dot optional).
	Extensions []string
	// Domains limits jobs to those whose source host matches one of the
	// given domains by suffix.
	Domains []string
}

// Filter returns the jobs matching the query, in display order.
func (s *Store) Filter(q FilterQuery) []domain.Job {
	query := strings.ToLower(strings.TrimSpace(q.Query))

	exts := make(map[string]struct{})
	for _, e := range q.Extensions {
		e = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(e, ".")))
		if e != "" {
			exts[e] = struct{}{}
		}
	}

	var domains []string
	for _, d := range q.Domains {
		if h := NormalizeHost(d); h != "" {
			domains = append(domains, h)
		}
	}

	var out []domain.Job
	for _, job := range s.All() {
		if query != "" && !matchesQuery(job, query) {
			continue
		}
		if len(exts) > 0 && !matchesExtensions(job, exts) {
			continue
		}
		if len(domains) > 0 && !matchesDomains(job, domains) {
			continue
		}
		out = append(out, job)
	}
	return out
}

func matchesQuery(job domain.Job, query string) bool {
	if strings.Contains(strings.ToLower(job.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(job.URL), query) {
		return true
	}
	for _, f := range job.Files {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

func matchesExtensions(job domain.Job, exts map[string]struct{}) bool {
	for _, f := range job.Files {
		if _, ok := exts[extOf(f)]; ok {
			return true
		}
	}
	if _, ok := exts[extOf(job.URL)]; ok {
		return true
	}
	if _, ok := exts[extOf(job.LocalURI)]; ok {
		return true
	}
	return false
}

func matchesDomains(job domain.Job, domains []string) bool {
	host := NormalizeHost(hostOf(job.URL))
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// NormalizeHost lowercases a host and strips a leading "www." and any path
// remnants.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimPrefix(h, "www.")
	if i := strings.IndexByte(h, '/'); i >= 0 {
		h = h[:i]
	}
	return h
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func extOf(p string) string {
	if p == "" {
		return ""
	}
	base := p
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
}
