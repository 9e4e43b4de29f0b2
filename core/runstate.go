package core

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunKind selects the AutoFocus artifact a run searches
type RunKind string

const (
	KindSamples  RunKind = "samples"
	KindSessions RunKind = "sessions"
)

// RunState is the running aggregate for one invocation. Records keep insertion order.
type RunState struct {
	ID      string
	Tag     string
	Kind    RunKind
	Started time.Time
	Records []*EnrichedRecord

	mu        sync.Mutex
	index     map[string]int
	anomalies []string
}

// NewRunState starts an empty run
func NewRunState(tag string, kind RunKind, started time.Time) *RunState {
	return &RunState{
		ID:      uuid.New().String(),
		Tag:     tag,
		Kind:    kind,
		Started: started,
		index:   make(map[string]int),
	}
}

// RestoreRunState rebuilds a run from previously persisted records
func RestoreRunState(tag string, kind RunKind, started time.Time, records []*EnrichedRecord) *RunState {
	s := NewRunState(tag, kind, started)
	for _, r := range records {
		s.Add(r)
	}
	return s
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Add appends a record unless one with the same key is already present
func (s *RunState) Add(r *EnrichedRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeKey(r.Key())
	if key != "" {
		if _, ok := s.index[key]; ok {
			return false
		}
		s.index[key] = len(s.Records)
	}
	s.Records = append(s.Records, r)
	return true
}

// AddAll appends records and returns the ones that were new
func (s *RunState) AddAll(records []*EnrichedRecord) []*EnrichedRecord {
	added := make([]*EnrichedRecord, 0, len(records))
	for _, r := range records {
		if s.Add(r) {
			added = append(added, r)
		}
	}
	return added
}

// Has reports whether a record with this key was recorded
func (s *RunState) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[normalizeKey(key)]
	return ok
}

// Len returns the number of records
func (s *RunState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Records)
}

// Snapshot returns a copy of the record list
func (s *RunState) Snapshot() []*EnrichedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*EnrichedRecord, len(s.Records))
	copy(out, s.Records)
	return out
}

// Missing returns each input without a record, once, in input order
func (s *RunState) Missing(inputs []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(inputs))
	var missing []string
	for _, in := range inputs {
		key := normalizeKey(in)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := s.index[key]; !ok {
			missing = append(missing, strings.TrimSpace(in))
		}
	}
	return missing
}

// Note records a data-shape problem that did not stop the run
func (s *RunState) Note(anomaly string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, anomaly)
}

// Anomalies returns the recorded data-shape problems
func (s *RunState) Anomalies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.anomalies))
	copy(out, s.anomalies)
	return out
}

// Summary is the quick statistics view of a run
type Summary struct {
	Total       int
	Found       int
	NotFound    int
	Verdicts    map[Verdict]int
	MalwareSigs map[SigState]int
	Anomalies   int
}

// Summarize counts records by verdict and, for malware, by WildFire AV signature state
func (s *RunState) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Total:       len(s.Records),
		Verdicts:    make(map[Verdict]int),
		MalwareSigs: make(map[SigState]int),
		Anomalies:   len(s.anomalies),
	}
	for _, r := range s.Records {
		if !r.Found() {
			sum.NotFound++
			continue
		}
		sum.Found++
		if r.Verdict != "" {
			sum.Verdicts[r.Verdict]++
		}
		if r.Verdict == VerdictMalware && r.SigCoverage != nil && r.WFAVSigState != "" {
			sum.MalwareSigs[r.WFAVSigState]++
		}
	}
	return sum
}
