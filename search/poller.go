// Package search drives AutoFocus searches to completion and composes full runs out of
// sessions, enrichment and the result sink.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"afdata/autofocus"
	"afdata/core"
	"afdata/metrics"

	"go.uber.org/zap"
)

// ErrPollLimit is returned when a search is still running after MaxPolls polls
var ErrPollLimit = errors.New("poll limit reached before search completed")

// Session is one submitted search
type Session interface {
	Submit(ctx context.Context) (core.SearchToken, error)
	Fetch(ctx context.Context) (*core.ResultPage, error)
}

// PageHandler receives the hits of a page that were not seen on an earlier poll
type PageHandler func(ctx context.Context, hits []core.Hit, page *core.ResultPage) error

// PollState is the observed state of a search
type PollState string

const (
	StateQueued     PollState = "queued"
	StateInProgress PollState = "in_progress"
	StateDone       PollState = "done"
)

// Progress is reported after every poll
type Progress struct {
	Poll               int
	State              PollState
	Total              int
	NewHits            int
	Processed          int
	CompletePercentage int
	Bucket             core.BucketInfo
	Elapsed            time.Duration
}

// PollerConfig parameterizes the poll loop
type PollerConfig struct {
	// Interval is slept before every poll, including the first
	Interval time.Duration
	// StallThreshold ends a search after this many consecutive in-progress polls without
	// new hits; zero disables it
	StallThreshold int
	// MaxPolls bounds the number of polls per search; zero means unlimited
	MaxPolls int
	Retry    RetryPolicy
}

// DefaultPollerConfig returns the poll loop defaults
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:       5 * time.Second,
		StallThreshold: 9,
		Retry:          DefaultRetryPolicy(),
	}
}

// For returns the config used to search kind. Only session searches end early on a
// stall; a samples search keeps polling until the server reports completion.
func (c PollerConfig) For(kind core.RunKind) PollerConfig {
	if kind != core.KindSessions {
		c.StallThreshold = 0
	}
	return c
}

// Result is the aggregate outcome of one search
type Result struct {
	Token     core.SearchToken
	Total     int
	Processed int
	Polls     int
	Retries   int
	Stalled   bool
	Bucket    core.BucketInfo
	Elapsed   time.Duration
}

// Poller drives a Session from QUEUED through IN_PROGRESS to DONE
type Poller struct {
	config   PollerConfig
	logger   *zap.SugaredLogger
	progress func(Progress)
	now      func() time.Time
}

// NewPoller creates a poll loop
func NewPoller(config PollerConfig, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Poller{config: config, logger: logger, now: time.Now}
}

// OnProgress registers a callback invoked after every poll
func (p *Poller) OnProgress(fn func(Progress)) {
	p.progress = fn
}

// Run submits the session and polls it until the server reports completion or the search
// stalls. handle is called once per page that carries new hits, before the next poll.
func (p *Poller) Run(ctx context.Context, s Session, handle PageHandler) (*Result, error) {
	start := p.now()
	res := &Result{}
	notify := func(err error, wait time.Duration) {
		res.Retries++
		metrics.PollRetries.Inc()
		p.logger.Warnw("Transport error, retrying", "error", err, "wait", wait, "retries", res.Retries)
	}

	token, err := retry(ctx, p.config.Retry, autofocus.IsUnsent, func() (core.SearchToken, error) { return s.Submit(ctx) }, notify)
	if err != nil {
		return res, fmt.Errorf("failed to submit search: %w", err)
	}
	res.Token = token
	p.logger.Infow("Search submitted", "cookie", token)

	seen := make(map[string]struct{})
	noGrowth := 0

	for {
		if p.config.MaxPolls > 0 && res.Polls >= p.config.MaxPolls {
			res.Elapsed = p.now().Sub(start)
			return res, fmt.Errorf("%w (%d polls)", ErrPollLimit, res.Polls)
		}
		if err := sleepContext(ctx, p.config.Interval); err != nil {
			res.Elapsed = p.now().Sub(start)
			return res, err
		}

		page, err := retry(ctx, p.config.Retry, autofocus.IsTransient, func() (*core.ResultPage, error) { return s.Fetch(ctx) }, notify)
		res.Polls++
		if err != nil {
			res.Elapsed = p.now().Sub(start)
			return res, fmt.Errorf("failed to fetch results: %w", err)
		}
		res.Bucket = page.Bucket

		if page.Queued() {
			metrics.Polls.WithLabelValues(string(StateQueued)).Inc()
			p.logger.Debugw("Search still queuing", "cookie", token, "poll", res.Polls)
			p.report(res, page, StateQueued, 0, start)
			continue
		}

		res.Total = *page.Total
		metrics.RecordQuota(page.Bucket.MinutePointsRemaining, page.Bucket.DailyPointsRemaining)

		fresh := make([]core.Hit, 0, len(page.Hits))
		for _, h := range page.Hits {
			if h.ID != "" {
				if _, dup := seen[h.ID]; dup {
					continue
				}
				seen[h.ID] = struct{}{}
			}
			fresh = append(fresh, h)
		}

		if len(fresh) > 0 && handle != nil {
			if err := handle(ctx, fresh, page); err != nil {
				res.Elapsed = p.now().Sub(start)
				return res, err
			}
		}
		res.Processed += len(fresh)

		state := StateInProgress
		if page.Done() {
			state = StateDone
		}
		metrics.Polls.WithLabelValues(string(state)).Inc()
		p.report(res, page, state, len(fresh), start)

		if state == StateDone {
			break
		}

		if len(fresh) == 0 {
			noGrowth++
		} else {
			noGrowth = 0
		}
		if p.config.StallThreshold > 0 && noGrowth >= p.config.StallThreshold {
			res.Stalled = true
			metrics.SearchStalls.Inc()
			p.logger.Warnw("Search stalled, ending early",
				"cookie", token, "polls_without_growth", noGrowth, "processed", res.Processed, "total", res.Total)
			break
		}
	}

	res.Elapsed = p.now().Sub(start)
	p.logger.Infow("Search complete",
		"cookie", token, "total", res.Total, "processed", res.Processed,
		"polls", res.Polls, "retries", res.Retries, "stalled", res.Stalled)
	return res, nil
}

// Count runs a search for its server total only
func (p *Poller) Count(ctx context.Context, s Session) (int, error) {
	res, err := p.Run(ctx, s, nil)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

func (p *Poller) report(res *Result, page *core.ResultPage, state PollState, fresh int, start time.Time) {
	if p.progress == nil {
		return
	}
	p.progress(Progress{
		Poll:               res.Polls,
		State:              state,
		Total:              res.Total,
		NewHits:            fresh,
		Processed:          res.Processed,
		CompletePercentage: page.CompletePercentage,
		Bucket:             page.Bucket,
		Elapsed:            p.now().Sub(start),
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
