package store

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
)

// Notifier fans out store mutations to registered listeners. Deliveries are
// fire-and-forget: a panicking listener is logged and never blocks the store
// or the other listeners.
type Notifier struct {
	mu        sync.Mutex
	listeners []domain.JobListener
	log       *logrus.Logger
}

// NewNotifier creates an empty notifier.
func NewNotifier(log *logrus.Logger) *Notifier {
	return &Notifier{log: log}
}

// Register adds a listener. Listeners are notified in registration order.
func (n *Notifier) Register(l domain.JobListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Unregister removes a previously registered listener.
func (n *Notifier) Unregister(l domain.JobListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, cur := range n.listeners {
		if cur == l {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

func (n *Notifier) jobAdded(job domain.Job, position int) {
	n.each(func(l domain.JobListener) { l.OnJobAdded(job, position) })
}

func (n *Notifier) jobUpdated(job domain.Job, position int) {
	n.each(func(l domain.JobListener) { l.OnJobUpdated(job, position) })
}

func (n *Notifier) jobRemoved(id string, position int) {
	n.each(func(l domain.JobListener) { l.OnJobRemoved(id, position) })
}

func (n *Notifier) jobsCleared() {
	n.each(func(l domain.JobListener) { l.OnJobsCleared() })
}

func (n *Notifier) each(notify func(domain.JobListener)) {
	n.mu.Lock()
	listeners := make([]domain.JobListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()

	for _, l := range listeners {
		n.safeNotify(l, notify)
	}
}

func (n *Notifier) safeNotify(l domain.JobListener, notify func(domain.JobListener)) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithField("panic", r).Error("job listener panicked")
		}
	}()
	notify(l)
}
