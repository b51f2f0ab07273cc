package appointment

import (
	"sync"
	"time"
)

// Board holds the classified request list shown on the request desk. All
// mutation goes through the pure transitions in resolver.go; the board only
// swaps results in and tracks view state that is not persisted: which
// requests are in flight and which conflicts were resolved by hand.
type Board struct {
	mu       sync.Mutex
	loc      *time.Location
	requests []ClassifiedRequest
	index    map[int64]int
	inFlight map[int64]struct{}
	resolved map[int64]struct{}
	loadedAt time.Time
}

func NewBoard(loc *time.Location) *Board {
	return &Board{
		loc:      loc,
		index:    make(map[int64]int),
		inFlight: make(map[int64]struct{}),
		resolved: make(map[int64]struct{}),
	}
}

// Load replaces the list with a fresh classification of the store contents.
func (b *Board) Load(requests []Request, appointments []Appointment) {
	classified := ClassifyRequests(requests, appointments)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = classified
	b.reindex()
	for id := range b.resolved {
		if _, ok := b.index[id]; !ok {
			delete(b.resolved, id)
		}
	}
	b.recompute()
	b.loadedAt = time.Now()
}

func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.loadedAt.IsZero()
}

// Add puts a newly submitted request at the head of the list, matching the
// newest-first order of the store.
func (b *Board) Add(cr ClassifiedRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.index[cr.ID]; ok {
		return
	}
	b.requests = append([]ClassifiedRequest{cr}, b.requests...)
	b.reindex()
	b.recompute()
}

func (b *Board) Get(id int64) (ClassifiedRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index[id]
	if !ok {
		return ClassifiedRequest{}, false
	}
	return b.requests[i], true
}

func (b *Board) Snapshot(f Filter) []BoardEntry {
	b.mu.Lock()
	entries := make([]BoardEntry, len(b.requests))
	for i, cr := range b.requests {
		_, busy := b.inFlight[cr.ID]
		entries[i] = BoardEntry{ClassifiedRequest: cr, InFlight: busy}
	}
	b.mu.Unlock()

	return FilterRequests(entries, f)
}

// Begin marks a request as in flight. It reports false if an action on the
// same request has not finished yet.
func (b *Board) Begin(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, busy := b.inFlight[id]; busy {
		return false
	}
	b.inFlight[id] = struct{}{}
	return true
}

func (b *Board) End(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, id)
}

// Apply runs a transition against the current state of one request and
// stores the result. A request the board does not know about is inserted.
func (b *Board) Apply(cr ClassifiedRequest, transition func(ClassifiedRequest) (ClassifiedRequest, error)) (ClassifiedRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, known := b.index[cr.ID]
	if known {
		cr = b.requests[i]
	}

	next, err := transition(cr)
	if err != nil {
		return cr, err
	}

	if known {
		b.requests[i] = next
	} else {
		b.requests = append(b.requests, next)
		b.index[next.ID] = len(b.requests) - 1
	}

	if next.Status != RequestPending {
		delete(b.resolved, next.ID)
	}
	return next, nil
}

// MarkResolved remembers a manual conflict resolution so Recompute keeps the
// flag cleared while the request stays pending.
func (b *Board) MarkResolved(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolved[id] = struct{}{}
}

// Recompute re-runs conflict detection over the whole list.
func (b *Board) Recompute() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recompute()
}

func (b *Board) recompute() {
	b.requests = DetectConflicts(b.requests, b.loc)
	for i, cr := range b.requests {
		if _, ok := b.resolved[cr.ID]; !ok {
			continue
		}
		if cr.Status != RequestPending {
			delete(b.resolved, cr.ID)
			continue
		}
		b.requests[i].HasConflict = false
	}
}

func (b *Board) reindex() {
	b.index = make(map[int64]int, len(b.requests))
	for i, cr := range b.requests {
		b.index[cr.ID] = i
	}
}
