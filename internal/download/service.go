package download

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
	"github.com/elteam/everyload/internal/store"
)

// SourceObserver learns about submitted source URLs, e.g. to keep the
// portal catalog current.
type SourceObserver interface {
	ObserveURL(rawURL string)
}

// Service is the facade binding the store, the queue, the retry policy and
// the fetcher. Callers observe fetch failures only through job state; no
// fetch error crosses this boundary.
type Service struct {
	store    *store.Store
	queue    *Queue
	fetcher  domain.Fetcher
	policy   domain.Policy
	options  domain.FetchOptions
	observer SourceObserver
	log      *logrus.Logger
}

// Config carries the tunables for a Service.
type Config struct {
	MaxConcurrent int
	Policy        domain.Policy
	Options       domain.FetchOptions
	// Observer may be nil.
	Observer SourceObserver
}

// NewService creates the orchestration facade.
func NewService(st *store.Store, fetcher domain.Fetcher, cfg Config, log *logrus.Logger) *Service {
	s := &Service{
		store:    st,
		fetcher:  fetcher,
		policy:   cfg.Policy,
		options:  cfg.Options,
		observer: cfg.Observer,
		log:      log,
	}
	s.queue = NewQueue(cfg.MaxConcurrent, s, log)
	return s
}

// Store returns the underlying job store.
func (s *Service) Store() *store.Store {
	return s.store
}

// SetMaxConcurrent changes the concurrency limit at runtime.
func (s *Service) SetMaxConcurrent(limit int) {
	s.queue.SetLimit(limit)
}

// Submit creates a queued job for the URL and schedules it. The job appears
// at position 0 of the display order before Submit returns.
func (s *Service) Submit(rawURL string) (domain.Job, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return domain.Job{}, domain.ErrInvalidURL
	}
	if existing, ok := s.store.FindActiveURL(rawURL); ok {
		return existing, domain.ErrJobExists
	}

	job := domain.NewJob(rawURL)
	s.store.Put(job)
	if s.observer != nil {
		s.observer.ObserveURL(rawURL)
	}
	s.queue.Enqueue(job.ID)

	s.log.WithFields(logrus.Fields{"job": job.ID, "url": rawURL}).Info("job submitted")
	return job, nil
}

// Job returns the job with the given ID.
func (s *Service) Job(id string) (domain.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

// Jobs returns all jobs in display order.
func (s *Service) Jobs() []domain.Job {
	return s.store.All()
}

// Filter returns jobs matching the filter query.
func (s *Service) Filter(q store.FilterQuery) []domain.Job {
	return s.store.Filter(q)
}

// Stop cancels a queued or running job. The job is marked stopped
// immediately; a late outcome from a fetch already in flight is discarded.
func (s *Service) Stop(id string) error {
	job, ok := s.store.Get(id)
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return domain.ErrNotActive
	}

	s.queue.Cancel(id)
	s.markStopped(id)
	return nil
}

// StopAll cancels every queued and running job.
func (s *Service) StopAll() {
	s.queue.CancelAll()
	for _, job := range s.store.All() {
		if !job.Status.IsTerminal() {
			s.markStopped(job.ID)
		}
	}
}

// Remove cancels any in-flight fetch for the job and deletes it. No orphan
// jobs: eviction from the queue and removal from the store go together.
func (s *Service) Remove(id string) error {
	if !s.store.Has(id) {
		return domain.ErrJobNotFound
	}
	s.queue.Cancel(id)
	s.store.Remove(id)
	return nil
}

// Clear stops everything and empties the store.
func (s *Service) Clear() {
	s.queue.CancelAll()
	s.store.Clear()
}

// Run executes one admitted job until a terminal outcome. It implements
// Runner and is invoked by the queue on a dedicated goroutine.
func (s *Service) Run(ctx context.Context, jobID string) {
	job, ok := s.store.MarkTriggered(jobID)
	if !ok {
		// Missing, or a concurrent caller already dispatched it.
		s.log.WithField("job", jobID).Warn("skipping dispatch")
		return
	}
	gen := job.Generation
	log := s.log.WithField("job", jobID)

	// Title extraction completes or fails before the job goes to
	// downloading.
	if job.Title == "" {
		s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
			j.Status = domain.StatusExtracting
			j.Info = "Fetching media info..."
			return j
		})
		title, err := s.fetcher.Probe(ctx, job.URL)
		if ctx.Err() != nil {
			s.markStoppedIfCurrent(jobID, gen)
			return
		}
		if err != nil {
			log.WithError(err).Warn("title probe failed")
		} else if t := cleanTitle(title); t != "" {
			job.Title = t
			s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
				j.Title = t
				return j
			})
		}
	}

	s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
		j.Status = domain.StatusDownloading
		j.Info = ""
		return j
	})

	req := domain.FetchRequest{
		JobID:   jobID,
		URL:     job.URL,
		Title:   job.Title,
		Options: s.options,
	}

	for attempt := 1; ; attempt++ {
		result, err := s.fetcher.Fetch(ctx, req, func(p domain.Progress) {
			s.markProgress(jobID, gen, p)
		})
		if err == nil {
			s.markDownloaded(jobID, gen, result)
			return
		}
		if ctx.Err() != nil {
			s.markStoppedIfCurrent(jobID, gen)
			return
		}

		category := domain.Classify(err)
		decision := s.policy.Decide(attempt, category)
		if !decision.Retry {
			log.WithError(err).WithField("category", category).Error("download failed")
			s.markFailed(jobID, gen, decision.Reason)
			return
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   decision.Delay,
		}).Warn("download attempt failed, retrying")
		s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
			j.Info = fmt.Sprintf("Attempt %d/%d failed, retrying...", attempt, s.policy.MaxAttempts)
			return j
		})

		select {
		case <-time.After(decision.Delay):
		case <-ctx.Done():
			s.markStoppedIfCurrent(jobID, gen)
			return
		}
	}
}

// markProgress merges one progress tick. Ticks never change the status,
// except that the source-complete signal moves the job to finished.
func (s *Service) markProgress(jobID string, gen uint64, p domain.Progress) {
	s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
		if p.SourceComplete {
			j.Status = domain.StatusFinished
		}
		if p.Message != "" {
			j.Info = p.Message
		} else if p.Percent > 0 {
			j.Info = fmt.Sprintf("Downloading: %.0f%%", p.Percent)
		}
		return j
	})
}

func (s *Service) markDownloaded(jobID string, gen uint64, result *domain.FetchResult) {
	job, applied := s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
		j.Status = domain.StatusDownloaded
		j.Files = result.Files
		j.LocalURI = result.LocalURI
		if len(result.Files) > 0 {
			j.Info = "Saved " + strings.Join(result.Files, ", ")
		} else {
			j.Info = "Download completed"
		}
		return j
	})
	if applied {
		s.log.WithFields(logrus.Fields{"job": jobID, "files": job.Files}).Info("download completed")
	} else {
		s.log.WithField("job", jobID).Debug("discarded late outcome")
	}
}

func (s *Service) markFailed(jobID string, gen uint64, reason domain.Category) {
	s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
		j.Status = domain.StatusError
		j.Info = reason.Message()
		return j
	})
}

// markStopped marks a job stopped optimistically and bumps the generation
// so any outcome still in flight is discarded.
func (s *Service) markStopped(jobID string) {
	s.store.UpdateIf(jobID,
		func(j domain.Job) bool { return !j.Status.IsTerminal() },
		func(j domain.Job) domain.Job {
			j.Status = domain.StatusStopped
			j.Info = "Stopped by user"
			j.Generation++
			return j
		})
}

// markStoppedIfCurrent settles a cancelled run that nobody marked stopped
// yet, e.g. when the process is shutting down.
func (s *Service) markStoppedIfCurrent(jobID string, gen uint64) {
	s.updateIfCurrent(jobID, gen, func(j domain.Job) domain.Job {
		j.Status = domain.StatusStopped
		if j.Info == "" {
			j.Info = "Stopped"
		}
		return j
	})
}

// updateIfCurrent applies fn only while the job is still on the generation
// this run was dispatched under and has not reached a terminal state. This
// is the id-and-generation check that makes terminal merges idempotent and
// late outcomes harmless.
func (s *Service) updateIfCurrent(jobID string, gen uint64, fn func(domain.Job) domain.Job) (domain.Job, bool) {
	return s.store.UpdateIf(jobID,
		func(j domain.Job) bool { return j.Generation == gen && !j.Status.IsTerminal() },
		fn)
}

func cleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" || t == "NA" || strings.HasPrefix(t, "ERROR") {
		return ""
	}
	return t
}
