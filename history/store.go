package history

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentswarm/controller"
)

// DefaultCapacity is the number of finished records kept when none is given.
const DefaultCapacity = 100

// Record is the history of one request.
type Record struct {
	RequestID   string
	Origin      string
	Request     string
	Stage       controller.Stage
	Transitions []controller.Transition
	Subtasks    []string
	Answer      string
	StartedAt   time.Time
	EndedAt     time.Time
}

// Finished reports whether the request reached a terminal stage.
func (r Record) Finished() bool { return r.Stage.Terminal() }

// Duration is the time from the first transition to completion, or zero
// while the request is in flight.
func (r Record) Duration() time.Duration {
	if !r.Finished() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func (r *Record) clone() Record {
	out := *r
	out.Transitions = append([]controller.Transition(nil), r.Transitions...)
	out.Subtasks = append([]string(nil), r.Subtasks...)
	return out
}

// Store is a volatile record store safe for concurrent access. Returned
// records are copies. Finished and in-flight records are bounded separately
// by the configured capacity; beyond it the oldest of each kind is dropped.
type Store struct {
	capacity int

	mu       sync.RWMutex
	records  map[string]*Record
	finished []string // request ids in completion order
	inflight []string // request ids in first-seen order, not yet complete
}

// NewStore creates a store keeping at most capacity finished and capacity
// in-flight records. A non-positive capacity uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, records: make(map[string]*Record)}
}

// Observe appends a transition, creating the record on first sight. It has
// the signature of controller.Options.OnTransition.
func (s *Store) Observe(tr controller.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, created := s.recordLocked(tr.RequestID)
	if len(rec.Transitions) == 0 {
		rec.StartedAt = tr.At
	}
	if rec.Origin == "" {
		rec.Origin = tr.Origin
	}
	if rec.Request == "" {
		rec.Request = tr.Request
	}
	rec.Transitions = append(rec.Transitions, tr)
	rec.Stage = tr.To

	if created && rec.EndedAt.IsZero() {
		s.inflight = append(s.inflight, tr.RequestID)
		s.trimLocked()
	}
}

// Complete stores the outcome of a finished request. It has the signature
// of controller.Options.OnComplete.
func (s *Store) Complete(out controller.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.recordLocked(out.RequestID)
	wasFinished := !rec.EndedAt.IsZero()
	rec.Origin = out.Origin
	rec.Request = out.Request
	rec.Stage = out.Stage
	rec.Subtasks = append([]string(nil), out.Subtasks...)
	rec.Answer = out.Answer
	rec.StartedAt = out.StartedAt
	rec.EndedAt = out.EndedAt

	if !wasFinished {
		if i := slices.Index(s.inflight, out.RequestID); i >= 0 {
			s.inflight = slices.Delete(s.inflight, i, i+1)
		}
		s.finished = append(s.finished, out.RequestID)
		s.trimLocked()
	}
}

// Get returns the record for requestID.
func (s *Store) Get(requestID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[requestID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// List returns all records ordered by start time.
func (s *Store) List() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Search returns up to limit records whose request text or answer contains
// query (case-insensitive), most recent first. A non-positive limit means no
// limit.
func (s *Store) Search(query string, limit int) []Record {
	query = strings.ToLower(query)
	all := s.List()

	var out []Record
	for i := len(all) - 1; i >= 0; i-- {
		rec := all[i]
		if strings.Contains(strings.ToLower(rec.Request), query) || strings.Contains(strings.ToLower(rec.Answer), query) {
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// recordLocked returns the record for id, creating it lazily; caller must
// hold the write lock.
func (s *Store) recordLocked(id string) (*Record, bool) {
	rec, ok := s.records[id]
	if !ok {
		rec = &Record{RequestID: id}
		s.records[id] = rec
	}
	return rec, !ok
}

func (s *Store) trimLocked() {
	for len(s.finished) > s.capacity {
		delete(s.records, s.finished[0])
		s.finished = s.finished[1:]
	}
	for len(s.inflight) > s.capacity {
		delete(s.records, s.inflight[0])
		s.inflight = s.inflight[1:]
	}
}

