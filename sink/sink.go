// Package sink persists run records as an Elasticsearch bulk-load stream plus a pretty
// JSON snapshot, and writes the CSV and NDJSON outputs of the statistics jobs.
package sink

import (
	"fmt"
	"time"

	"afdata/core"

	"go.uber.org/zap"
)

// Sink writes the artifacts of one output pass. The first Append of a run truncates
// any earlier artifacts with the same names.
type Sink struct {
	layout Layout
	index  string
	pass   Pass
	logger *zap.SugaredLogger

	started map[string]bool
}

// New creates a sink writing documents under index
func New(layout Layout, index string, pass Pass, logger *zap.SugaredLogger) *Sink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sink{layout: layout, index: index, pass: pass, logger: logger, started: make(map[string]bool)}
}

// Paths returns the bulk and snapshot paths for state
func (s *Sink) Paths(state *core.RunState) (bulk, pretty string) {
	return s.layout.BulkPath(state.Kind, state.Tag, s.pass), s.layout.PrettyPath(state.Kind, state.Tag, s.pass)
}

// Append streams records to the bulk file and rewrites the snapshot from state
func (s *Sink) Append(state *core.RunState, records []*core.EnrichedRecord) error {
	bulkPath, prettyPath := s.Paths(state)
	first := !s.started[bulkPath]

	if err := s.appendBulk(bulkPath, records, first); err != nil {
		return err
	}
	s.started[bulkPath] = true

	if err := WriteSnapshot(prettyPath, state.Kind, state.Snapshot()); err != nil {
		return err
	}
	s.logger.Debugw("Persisted page", "records", len(records), "total", state.Len(), "bulk", bulkPath)
	return nil
}

// Persist rewrites both artifacts from the full contents of state
func (s *Sink) Persist(state *core.RunState) error {
	bulkPath, prettyPath := s.Paths(state)
	records := state.Snapshot()

	if err := s.appendBulk(bulkPath, records, true); err != nil {
		return err
	}
	s.started[bulkPath] = true
	return WriteSnapshot(prettyPath, state.Kind, records)
}

// LoadRun restores a run from the snapshot written by pass. started becomes the
// restored run's start time.
func LoadRun(layout Layout, tag string, kind core.RunKind, pass Pass, started time.Time) (*core.RunState, error) {
	records, err := LoadSnapshot(layout.PrettyPath(kind, tag, pass), kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", tag, err)
	}
	return core.RestoreRunState(tag, kind, started, records), nil
}

func (s *Sink) appendBulk(path string, records []*core.EnrichedRecord, truncate bool) error {
	f, err := OpenBulkFile(path, s.index, truncate)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := f.Write(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}
