// Package status tracks per-document processing state and fans updates out
// to subscribers. The tracker is an explicit object wired in at startup, not
// a package-level singleton.
package status

import (
	"sync"

	"github.com/doclyn/doclyn/internal/models"
)

// Tracker owns the map of document id → status and the per-document
// subscriber lists. All methods are safe for concurrent use by multiple
// in-flight pipelines.
//
// Delivery semantics: every update is fanned out to every subscriber
// registered for that document at the moment of the update, asynchronously
// and in order. There is no replay: a late subscriber calls Get once to
// catch up.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]models.ProcessingStatus
	subs     map[string][]*subscriber
	nextID   int
}

// subscriber buffers snapshots in an unbounded queue so a slow consumer
// never blocks the pipeline that produced the update. A dedicated goroutine
// drains the queue into the outward channel in order.
type subscriber struct {
	id     int
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.ProcessingStatus
	closed bool
	done   chan struct{}
	out    chan models.ProcessingStatus
}

func newSubscriber(id int) *subscriber {
	s := &subscriber{
		id:   id,
		done: make(chan struct{}),
		out:  make(chan models.ProcessingStatus),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.drain()
	return s
}

func (s *subscriber) push(st models.ProcessingStatus) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, st)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	s.cond.Signal()
}

func (s *subscriber) drain() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		st := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		// A consumer that stopped reading must not wedge the drain loop.
		select {
		case s.out <- st:
		case <-s.done:
			return
		}
	}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]models.ProcessingStatus),
		subs:     make(map[string][]*subscriber),
	}
}

// Get returns a snapshot of the document's current status. The second return
// is false if the document was never submitted.
func (t *Tracker) Get(documentID string) (models.ProcessingStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[documentID]
	return st, ok
}

// Update applies mutate to a copy of the current status (zero value if none
// exists yet), stores the result, and fans the new snapshot out to current
// subscribers. The stored value is never aliased to callers.
func (t *Tracker) Update(documentID string, mutate func(*models.ProcessingStatus)) models.ProcessingStatus {
	t.mu.Lock()
	st := t.statuses[documentID]
	if st.DocumentID == "" {
		st.DocumentID = documentID
	}
	mutate(&st)
	t.statuses[documentID] = st
	subs := make([]*subscriber, len(t.subs[documentID]))
	copy(subs, t.subs[documentID])
	t.mu.Unlock()

	for _, s := range subs {
		s.push(st)
	}
	return st
}

// Subscribe registers for future updates of one document. It returns a
// receive channel and an unsubscribe function; calling unsubscribe more than
// once is a no-op. The channel is closed on unsubscribe.
func (t *Tracker) Subscribe(documentID string) (<-chan models.ProcessingStatus, func()) {
	t.mu.Lock()
	t.nextID++
	s := newSubscriber(t.nextID)
	t.subs[documentID] = append(t.subs[documentID], s)
	t.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			t.mu.Lock()
			list := t.subs[documentID]
			for i, cur := range list {
				if cur.id == s.id {
					t.subs[documentID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(t.subs[documentID]) == 0 {
				delete(t.subs, documentID)
			}
			t.mu.Unlock()
			s.close()
		})
	}
	return s.out, unsubscribe
}
