package store

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
)

// Store is the keyed, order-preserving job collection. Display order is
// newest-first by insertion. Every mutation persists the full snapshot
// through the Snapshotter before returning, so a crash immediately after
// any mutating call recovers the same state on reload.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]domain.Job
	order    []string
	snap     domain.Snapshotter
	notifier *Notifier
	log      *logrus.Logger
}

// New creates a store backed by the given snapshotter and reloads the last
// snapshot. Jobs whose last known status was a permanent failure are dropped
// rather than resurrected.
func New(snap domain.Snapshotter, log *logrus.Logger) (*Store, error) {
	s := &Store{
		jobs:     make(map[string]domain.Job),
		order:    nil,
		snap:     snap,
		notifier: NewNotifier(log),
		log:      log,
	}

	jobs, err := snap.Load()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Status == domain.StatusError {
			continue
		}
		s.jobs[job.ID] = job
		s.order = append(s.order, job.ID)
	}
	if len(s.jobs) > 0 {
		log.WithField("jobs", len(s.jobs)).Info("restored jobs from snapshot")
	}
	return s, nil
}

// Notifier returns the change notifier for listener registration.
func (s *Store) Notifier() *Notifier {
	return s.notifier
}

// Put inserts or replaces a job by ID. New jobs go to the front of the
// display order. Returns true on insert, false on update.
func (s *Store) Put(job domain.Job) bool {
	s.mu.Lock()
	_, exists := s.jobs[job.ID]
	s.jobs[job.ID] = job
	var position int
	if exists {
		position = s.positionLocked(job.ID)
	} else {
		s.order = append([]string{job.ID}, s.order...)
	}
	s.persistLocked()
	s.mu.Unlock()

	if exists {
		s.notifier.jobUpdated(job, position)
		return false
	}
	s.notifier.jobAdded(job, 0)
	return true
}

// Get returns the job with the given ID.
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// Update applies fn to the job's current snapshot and stores the result.
// Returns the updated job, or false if the job does not exist.
func (s *Store) Update(id string, fn func(domain.Job) domain.Job) (domain.Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, false
	}
	job = fn(job)
	job.ID = id // identity is immutable
	s.jobs[id] = job
	position := s.positionLocked(id)
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.jobUpdated(job, position)
	return job, true
}

// UpdateIf applies fn only when cond holds for the job's current snapshot.
// When cond fails the store is untouched and no notification is emitted;
// the second return reports whether the update was applied.
func (s *Store) UpdateIf(id string, cond func(domain.Job) bool, fn func(domain.Job) domain.Job) (domain.Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || !cond(job) {
		s.mu.Unlock()
		return job, false
	}
	job = fn(job)
	job.ID = id
	s.jobs[id] = job
	position := s.positionLocked(id)
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.jobUpdated(job, position)
	return job, true
}

// UpdateStatus replaces the job's status and, when info is non-empty, its
// info text.
func (s *Store) UpdateStatus(id string, status domain.Status, info string) (domain.Job, bool) {
	return s.Update(id, func(j domain.Job) domain.Job {
		j.Status = status
		if info != "" {
			j.Info = info
		}
		return j
	})
}

// MarkTriggered flips the dispatch guard and bumps the job's generation.
// Returns false if the job is absent or a download was already dispatched,
// suppressing duplicate dispatch from concurrent callers.
func (s *Store) MarkTriggered(id string) (domain.Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Triggered {
		s.mu.Unlock()
		return domain.Job{}, false
	}
	job.Triggered = true
	job.Generation++
	s.jobs[id] = job
	position := s.positionLocked(id)
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.jobUpdated(job, position)
	return job, true
}

// Remove deletes a job from both the map and the order list. Returns false
// if the job is absent. Relative order of the remaining jobs is unchanged.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	position := s.positionLocked(id)
	if position < 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.jobs, id)
	s.order = append(s.order[:position], s.order[position+1:]...)
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.jobRemoved(id, position)
	return true
}

// Clear removes every job.
func (s *Store) Clear() {
	s.mu.Lock()
	s.jobs = make(map[string]domain.Job)
	s.order = nil
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.jobsCleared()
}

// All returns every job in display order.
func (s *Store) All() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// ByStatus returns jobs with the given status, in display order.
func (s *Store) ByStatus(status domain.Status) []domain.Job {
	var jobs []domain.Job
	for _, job := range s.All() {
		if job.Status == status {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// FindActiveURL returns a non-terminal job with the given source URL.
func (s *Store) FindActiveURL(url string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		job := s.jobs[id]
		if job.URL == url && !job.Status.IsTerminal() {
			return job, true
		}
	}
	return domain.Job{}, false
}

// Len returns the number of jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Has reports whether a job with the given ID exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

// Position returns the display position of a job, or -1 if absent.
func (s *Store) Position(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionLocked(id)
}

func (s *Store) positionLocked(id string) int {
	for i, jid := range s.order {
		if jid == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the current snapshot through the snapshotter. Jobs in
// a purely transient downloading state with no info text are elided so a
// crash does not resurrect "downloading" ghosts. Called with s.mu held.
func (s *Store) persistLocked() {
	snapshot := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if job.Status == domain.StatusDownloading && job.Info == "" {
			continue
		}
		snapshot = append(snapshot, job)
	}
	if err := s.snap.Save(snapshot); err != nil {
		s.log.WithError(err).Error("failed to persist job snapshot")
	}
}
