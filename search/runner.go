package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"afdata/core"
	"afdata/metrics"

	"go.uber.org/zap"
)

// Mode selects how the search query is built
type Mode string

const (
	// ModeHash searches an input list of hashes and reconciles inputs without a match
	ModeHash Mode = "hash"
	// ModeThreat searches an input list of threat names
	ModeThreat Mode = "threat"
	// ModeQuery submits one free-form query exported from the AutoFocus UI
	ModeQuery Mode = "query"
)

// ParseMode validates a configured search mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeHash, ModeThreat, ModeQuery:
		return Mode(s), nil
	case "autofocus":
		return ModeQuery, nil
	}
	return "", fmt.Errorf("unsupported search mode %q (hash, threat or query)", s)
}

// RecordBuilder turns new hits into enriched records
type RecordBuilder interface {
	Build(ctx context.Context, hits []core.Hit, state *core.RunState) ([]*core.EnrichedRecord, error)
}

// RecordSink persists records as they are accepted into the run. Persist writes the
// whole run at once and replaces whatever a previous run with the same tag left behind.
type RecordSink interface {
	Append(state *core.RunState, records []*core.EnrichedRecord) error
	Persist(state *core.RunState) error
}

// SessionFactory prepares an unsubmitted search for one query
type SessionFactory func(q core.Query) Session

// RunRequest describes one logical run
type RunRequest struct {
	State        *core.RunState
	Mode         Mode
	HashType     core.HashType
	Inputs       []string
	Query        core.Query
	ThreatWindow [2]string
	ChunkSize    int
}

// RunReport aggregates the chunk results of a run
type RunReport struct {
	Chunks   []*Result
	Found    int
	NotFound int
	Elapsed  time.Duration
}

// Processed returns the number of hits handed to enrichment across chunks
func (r *RunReport) Processed() int {
	n := 0
	for _, c := range r.Chunks {
		n += c.Processed
	}
	return n
}

// Stalled reports whether any chunk ended on the stall threshold
func (r *RunReport) Stalled() bool {
	for _, c := range r.Chunks {
		if c.Stalled {
			return true
		}
	}
	return false
}

// Runner composes sessions, the poll loop, enrichment and the sink into a run
type Runner struct {
	poller   *Poller
	sessions SessionFactory
	builder  RecordBuilder
	sink     RecordSink
	logger   *zap.SugaredLogger
	onChunk  func(index, total, size int)
}

// NewRunner creates a runner
func NewRunner(poller *Poller, sessions SessionFactory, builder RecordBuilder, sink RecordSink, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{poller: poller, sessions: sessions, builder: builder, sink: sink, logger: logger}
}

// OnChunk registers a callback invoked before each chunk is submitted
func (r *Runner) OnChunk(fn func(index, total, size int)) {
	r.onChunk = fn
}

type chunkQuery struct {
	query core.Query
	size  int
}

func (req *RunRequest) queries() ([]chunkQuery, error) {
	switch req.Mode {
	case ModeQuery:
		if req.Query.IsZero() {
			return nil, errors.New("query mode requires a query")
		}
		return []chunkQuery{{query: req.Query}}, nil
	case ModeHash:
		if _, err := core.ParseHashType(string(req.HashType)); err != nil {
			return nil, err
		}
		var out []chunkQuery
		for _, c := range Chunk(req.Inputs, req.ChunkSize) {
			out = append(out, chunkQuery{query: core.HashListQuery(req.HashType, c), size: len(c)})
		}
		return out, nil
	case ModeThreat:
		var out []chunkQuery
		for _, c := range Chunk(req.Inputs, req.ChunkSize) {
			out = append(out, chunkQuery{query: core.ThreatNameQuery(req.ThreatWindow, c), size: len(c)})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported search mode %q", req.Mode)
}

// Run performs one submit and poll cycle per chunk, threading req.State through all of
// them. In hash mode a samples run appends the inputs without a match once all chunks
// are done, unless a chunk stalled; session records are keyed by session and are never
// reconciled. A run that appended nothing still persists, leaving empty artifacts.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	if req.State == nil {
		return nil, errors.New("run state is required")
	}
	queries, err := req.queries()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	state := req.State
	report := &RunReport{}

	handle := func(ctx context.Context, hits []core.Hit, page *core.ResultPage) error {
		records, err := r.builder.Build(ctx, hits, state)
		if err != nil {
			return fmt.Errorf("enrichment failed: %w", err)
		}
		added := state.AddAll(records)
		metrics.HitsProcessed.WithLabelValues(string(state.Kind)).Add(float64(len(hits)))
		if len(added) == 0 {
			return nil
		}
		if err := r.sink.Append(state, added); err != nil {
			return fmt.Errorf("failed to persist page: %w", err)
		}
		report.Found += len(added)
		return nil
	}

	for i, cq := range queries {
		if r.onChunk != nil {
			r.onChunk(i+1, len(queries), cq.size)
		}
		r.logger.Infow("Starting search interval", "interval", i+1, "of", len(queries), "elements", cq.size, "tag", state.Tag)

		res, err := r.poller.Run(ctx, r.sessions(cq.query), handle)
		if res != nil {
			report.Chunks = append(report.Chunks, res)
		}
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("search interval %d of %d: %w", i+1, len(queries), err)
		}
	}

	if req.Mode == ModeHash && state.Kind == core.KindSamples {
		if report.Stalled() {
			r.logger.Warnw("Search stalled, inputs without a match are not reconciled", "tag", state.Tag)
		} else if err := r.reconcile(state, req.Inputs, report); err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
	}

	if report.Found+report.NotFound == 0 {
		if err := r.sink.Persist(state); err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("failed to persist empty run: %w", err)
		}
		r.logger.Infow("Run returned no records", "tag", state.Tag)
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

func (r *Runner) reconcile(state *core.RunState, inputs []string, report *RunReport) error {
	missing := state.Missing(inputs)
	if len(missing) == 0 {
		return nil
	}
	placeholders := make([]*core.EnrichedRecord, 0, len(missing))
	for _, m := range missing {
		placeholders = append(placeholders, core.NotFoundRecord(m, state.Tag, state.Started))
	}
	added := state.AddAll(placeholders)
	if err := r.sink.Append(state, added); err != nil {
		return fmt.Errorf("failed to persist not-found records: %w", err)
	}
	report.NotFound = len(added)
	r.logger.Infow("Reconciled inputs without a sample", "not_found", len(added), "tag", state.Tag)
	return nil
}
