package reconcile

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/corrudash/internal/models"
)

// View is an immutable reconciliation result plus the metadata of its inputs
type View struct {
	Jobs       []models.ReconciledJob
	Version    uint64
	SnapshotAt time.Time // zero until the first snapshot arrives
	LiveAt     time.Time // zero until the first live set arrives
}

// Listener is notified after every recomputation
type Listener func(view View)

// Store owns the latest snapshot and live set and the reconciliation derived
// from them. One Store is created per dashboard session.
//
// Setters replace an input wholesale and recompute synchronously; readers get
// the latest result without locking.
type Store struct {
	notifyMu   sync.Mutex // serialises recompute+notify so listeners see versions in order
	mu         sync.Mutex
	snapshot   []models.JobStaticProfile
	live       []models.JobLiveState
	snapshotAt time.Time
	liveAt     time.Time
	version    uint64
	listeners  []Listener

	current atomic.Pointer[View]
	now     func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.current.Store(&View{Jobs: []models.ReconciledJob{}})
	return s
}

// OnChange registers a listener. Listeners run in registration order, in the
// goroutine that changed the store, after the new view is visible. A listener
// must not call SetSnapshot or SetLiveSet.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SetSnapshot replaces the cached snapshot and recomputes
func (s *Store) SetSnapshot(profiles []models.JobStaticProfile) View {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.snapshot = append([]models.JobStaticProfile(nil), profiles...)
	s.snapshotAt = s.now()
	view, listeners := s.recomputeLocked()
	s.mu.Unlock()

	notify(listeners, view)
	return view
}

// SetLiveSet replaces the cached live set and recomputes. A nil or empty set
// reverts every job to its default live state.
func (s *Store) SetLiveSet(states []models.JobLiveState) View {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.live = append([]models.JobLiveState(nil), states...)
	s.liveAt = s.now()
	view, listeners := s.recomputeLocked()
	s.mu.Unlock()

	notify(listeners, view)
	return view
}

// Current returns the latest reconciled jobs
func (s *Store) Current() []models.ReconciledJob {
	return s.current.Load().Jobs
}

// View returns the latest result with its metadata
func (s *Store) View() View {
	return *s.current.Load()
}

// Profile returns the cached profile for a job, if present
func (s *Store) Profile(id string) (models.JobStaticProfile, bool) {
	for _, job := range s.Current() {
		if job.Profile.ID == id {
			return job.Profile, true
		}
	}
	return models.JobStaticProfile{}, false
}

func (s *Store) recomputeLocked() (View, []Listener) {
	s.version++
	view := View{
		Jobs:       Reconcile(s.snapshot, s.live),
		Version:    s.version,
		SnapshotAt: s.snapshotAt,
		LiveAt:     s.liveAt,
	}
	s.current.Store(&view)

	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	return view, listeners
}

func notify(listeners []Listener, view View) {
	for _, l := range listeners {
		l(view)
	}
}
