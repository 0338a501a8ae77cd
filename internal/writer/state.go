package writer

import "sync"

// Skip reasons reported for events that produce no commands.
const (
	SkipDuplicateIdempotency = "duplicate_idempotency"
	SkipInvalidEvent         = "invalid_event"
	SkipNoCommand            = "no_command"
	SkipStaleEvent           = "stale_event"
)

// Conflict reasons accumulated across batches.
const (
	ConflictIdempotency = "idempotency_conflict"
	ConflictStaleEvent  = "stale_event"
)

// Metrics is the writer's health snapshot. It is replaced wholesale after
// every batch; only the conflict ledger accumulates.
type Metrics struct {
	Backlog           int            `json:"backlog"`
	RetryCount        int            `json:"retry_count"`
	AcceptedCount     int            `json:"accepted_count"`
	SkippedCount      int            `json:"skipped_count"`
	CommandCount      int            `json:"command_count"`
	AuditCommandCount int            `json:"audit_command_count"`
	FailedByDomain    map[string]int `json:"failed_by_domain"`
	SkipByReason      map[string]int `json:"skip_by_reason"`
	UpdatedAt         int64          `json:"updated_at"`
}

// ConflictStats counts rejected events by reason since the state was
// created.
type ConflictStats struct {
	ByReason map[string]int `json:"by_reason"`
}

// State is the writer's durable working memory: the idempotency ledger,
// cumulative conflict counters, and the last batch's metrics. Safe for
// concurrent use.
type State struct {
	mu        sync.Mutex
	seen      map[string]string
	conflicts ConflictStats
	metrics   Metrics
}

// NewState returns an empty writer state.
func NewState() *State {
	return &State{
		seen:      make(map[string]string),
		conflicts: ConflictStats{ByReason: make(map[string]int)},
	}
}

// Seen reports whether an idempotency key was already accepted and, if so,
// by which event.
func (s *State) Seen(idempotencyKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eventID, ok := s.seen[idempotencyKey]
	return eventID, ok
}

// Remember records an accepted idempotency key.
func (s *State) Remember(idempotencyKey, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[idempotencyKey] = eventID
}

// LedgerSize reports how many idempotency keys have been accepted.
func (s *State) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *State) recordConflict(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts.ByReason[reason]++
}

// Conflicts returns a copy of the cumulative conflict counters.
func (s *State) Conflicts() ConflictStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ConflictStats{ByReason: make(map[string]int, len(s.conflicts.ByReason))}
	for reason, n := range s.conflicts.ByReason {
		out.ByReason[reason] = n
	}
	return out
}

func (s *State) setMetrics(m Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Metrics returns the metrics recorded by the most recent batch.
func (s *State) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}
