package notify

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
)

// Listener renders job transitions as status lines. Terminal states are
// announced exactly once per job; progress updates stay at debug level.
type Listener struct {
	mu        sync.Mutex
	announced map[string]domain.Status
	log       *logrus.Logger
}

// New creates a status listener.
func New(log *logrus.Logger) *Listener {
	return &Listener{
		announced: make(map[string]domain.Status),
		log:       log,
	}
}

// OnJobAdded implements domain.JobListener.
func (l *Listener) OnJobAdded(job domain.Job, position int) {
	l.log.WithFields(logrus.Fields{"job": job.ID, "url": job.URL}).Info("queued")
}

// OnJobUpdated implements domain.JobListener.
func (l *Listener) OnJobUpdated(job domain.Job, position int) {
	if !job.Status.IsTerminal() {
		l.log.WithFields(logrus.Fields{
			"job":    job.ID,
			"status": job.Status,
			"info":   job.Info,
		}).Debug("progress")
		return
	}

	l.mu.Lock()
	already := l.announced[job.ID] == job.Status
	l.announced[job.ID] = job.Status
	l.mu.Unlock()
	if already {
		return
	}

	entry := l.log.WithFields(logrus.Fields{
		"job":   job.ID,
		"title": job.DisplayTitle(),
		"info":  job.Info,
	})
	switch job.Status {
	case domain.StatusDownloaded:
		entry.Info("download completed")
	case domain.StatusStopped:
		entry.Info("download stopped")
	default:
		entry.Warn("download failed")
	}
}

// OnJobRemoved implements domain.JobListener.
func (l *Listener) OnJobRemoved(id string, position int) {
	l.mu.Lock()
	delete(l.announced, id)
	l.mu.Unlock()
}

// OnJobsCleared implements domain.JobListener.
func (l *Listener) OnJobsCleared() {
	l.mu.Lock()
	l.announced = make(map[string]domain.Status)
	l.mu.Unlock()
}
