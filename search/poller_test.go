package search

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"afdata/autofocus"
	"afdata/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	page *core.ResultPage
	err  error
}

// stubSession replays scripted poll responses; the last step repeats forever
type stubSession struct {
	mu        sync.Mutex
	steps     []step
	next      int
	submits   int
	fetches   int
	submitErr error
}

func (s *stubSession) Submit(ctx context.Context) (core.SearchToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "cookie", nil
}

func (s *stubSession) Fetch(ctx context.Context) (*core.ResultPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	i := s.next
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.next++
	return s.steps[i].page, s.steps[i].err
}

func page(total int, inProgress bool, ids ...string) *core.ResultPage {
	t := total
	p := &core.ResultPage{Total: &t, InProgress: inProgress, Bucket: core.BucketInfo{MinutePointsRemaining: 100, DailyPointsRemaining: 1000}}
	for _, id := range ids {
		p.Hits = append(p.Hits, core.Hit{ID: id, Source: []byte(`{}`)})
	}
	return p
}

func queued() *core.ResultPage {
	return &core.ResultPage{InProgress: true}
}

func fastConfig() PollerConfig {
	return PollerConfig{
		Interval:       time.Millisecond,
		StallThreshold: 10,
		Retry:          RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	}
}

type handlerSpy struct {
	calls int
	ids   []string
}

func (h *handlerSpy) handle(ctx context.Context, hits []core.Hit, p *core.ResultPage) error {
	h.calls++
	for _, hit := range hits {
		h.ids = append(h.ids, hit.ID)
	}
	return nil
}

func TestPoller_PaginationAccumulation(t *testing.T) {
	s := &stubSession{steps: []step{
		{page: page(3, true, "a", "b", "c")},
		{page: page(5, true, "d", "e")},
		{page: page(5, false)},
	}}
	spy := &handlerSpy{}

	res, err := NewPoller(fastConfig(), nil).Run(context.Background(), s, spy.handle)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 2, spy.calls, "the empty completion page must not reach enrichment")
	assert.Equal(t, 3, res.Polls)
	assert.False(t, res.Stalled)
	assert.Equal(t, core.SearchToken("cookie"), res.Token)
	assert.Equal(t, 1, s.submits)
}

func TestPoller_IdempotentRefetch(t *testing.T) {
	same := page(2, true, "a", "b")
	s := &stubSession{steps: []step{
		{page: same},
		{page: same},
		{page: page(2, false, "a", "b")},
	}}
	spy := &handlerSpy{}

	res, err := NewPoller(fastConfig(), nil).Run(context.Background(), s, spy.handle)
	require.NoError(t, err)

	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, []string{"a", "b"}, spy.ids)
	assert.Equal(t, 2, res.Processed)
}

func TestPoller_PartialOverlapOnlyDeliversNewHits(t *testing.T) {
	s := &stubSession{steps: []step{
		{page: page(2, true, "a", "b")},
		{page: page(3, false, "b", "c")},
	}}
	spy := &handlerSpy{}

	res, err := NewPoller(fastConfig(), nil).Run(context.Background(), s, spy.handle)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, spy.ids)
	assert.Equal(t, 3, res.Processed)
}

func TestPoller_StallTermination(t *testing.T) {
	cfg := fastConfig()
	cfg.StallThreshold = 4
	s := &stubSession{steps: []step{{page: page(7, true, "a")}}}
	spy := &handlerSpy{}

	res, err := NewPoller(cfg, nil).Run(context.Background(), s, spy.handle)
	require.NoError(t, err)

	assert.True(t, res.Stalled)
	assert.Equal(t, 1+cfg.StallThreshold, res.Polls, "one productive poll then threshold polls without growth")
	assert.Equal(t, 1, spy.calls)
}

func TestPoller_StallWithoutAnyHits(t *testing.T) {
	cfg := fastConfig()
	cfg.StallThreshold = 3
	s := &stubSession{steps: []step{{page: page(0, true)}}}

	res, err := NewPoller(cfg, nil).Run(context.Background(), s, nil)
	require.NoError(t, err)
	assert.True(t, res.Stalled)
	assert.Equal(t, 3, res.Polls)
}

func TestPoller_StallDisabled(t *testing.T) {
	cfg := fastConfig()
	cfg.StallThreshold = 0
	cfg.MaxPolls = 20
	s := &stubSession{steps: []step{{page: page(1, true, "a")}}}

	res, err := NewPoller(cfg, nil).Run(context.Background(), s, nil)
	assert.ErrorIs(t, err, ErrPollLimit)
	assert.Equal(t, 20, res.Polls)
	assert.False(t, res.Stalled)
}

func TestPollerConfig_For(t *testing.T) {
	cfg := fastConfig()
	cfg.StallThreshold = 9

	assert.Equal(t, 9, cfg.For(core.KindSessions).StallThreshold)
	assert.Equal(t, 0, cfg.For(core.KindSamples).StallThreshold, "samples searches run to completion")
	assert.Equal(t, cfg.Interval, cfg.For(core.KindSamples).Interval)
	assert.Equal(t, 9, cfg.StallThreshold, "For does not modify the receiver")
	assert.Equal(t, 9, DefaultPollerConfig().StallThreshold)
}

func TestPoller_QueuedPollsAreWaitState(t *testing.T) {
	cfg := fastConfig()
	cfg.StallThreshold = 2
	s := &stubSession{steps: []step{
		{page: queued()},
		{page: queued()},
		{page: queued()},
		{page: page(1, false, "a")},
	}}
	spy := &handlerSpy{}
	var states []PollState
	p := NewPoller(cfg, nil)
	p.OnProgress(func(pr Progress) { states = append(states, pr.State) })

	res, err := p.Run(context.Background(), s, spy.handle)
	require.NoError(t, err)

	assert.False(t, res.Stalled, "queued polls must not count toward the stall threshold")
	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, []PollState{StateQueued, StateQueued, StateQueued, StateDone}, states)
}

func TestPoller_RetriesTransportErrors(t *testing.T) {
	transient := &autofocus.TransportError{Op: "POST", URL: "u", Err: io.ErrUnexpectedEOF}
	s := &stubSession{steps: []step{
		{err: transient},
		{err: transient},
		{page: page(1, false, "a")},
	}}

	res, err := NewPoller(fastConfig(), nil).Run(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 3, s.fetches)
}

func TestPoller_RetryBudgetExhausted(t *testing.T) {
	cfg := fastConfig()
	cfg.Retry.MaxRetries = 2
	s := &stubSession{steps: []step{{err: &autofocus.TransportError{Op: "POST", Err: io.EOF}}}}

	_, err := NewPoller(cfg, nil).Run(context.Background(), s, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, autofocus.IsTransient(err))
	assert.Equal(t, 3, s.fetches, "initial attempt plus MaxRetries")
}

func TestPoller_HTTPErrorIsFatal(t *testing.T) {
	s := &stubSession{steps: []step{{err: &autofocus.RemoteRequestError{StatusCode: 409, Body: "bad cookie"}}}}

	_, err := NewPoller(fastConfig(), nil).Run(context.Background(), s, nil)
	require.Error(t, err)
	re, ok := autofocus.AsRemoteRequestError(err)
	require.True(t, ok)
	assert.Equal(t, 409, re.StatusCode)
	assert.Equal(t, 1, s.fetches, "HTTP status errors are never retried")
}

func TestPoller_SubmitDialErrorIsRetried(t *testing.T) {
	s := &stubSession{steps: []step{{page: page(0, false)}}}
	attempts := 0
	refused := &autofocus.TransportError{Op: "POST", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	flaky := &flakySubmit{stubSession: s, failures: 1, err: refused, attempts: &attempts}

	res, err := NewPoller(fastConfig(), nil).Run(context.Background(), flaky, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, res.Retries)
}

func TestPoller_SubmitIsNotReissuedOnceSent(t *testing.T) {
	for name, sent := range map[string]error{
		"truncated response": &autofocus.TransportError{Op: "read", Err: io.ErrUnexpectedEOF},
		"reset after write":  &autofocus.TransportError{Op: "POST", Err: io.EOF},
	} {
		t.Run(name, func(t *testing.T) {
			s := &stubSession{steps: []step{{page: page(0, false)}}}
			attempts := 0
			flaky := &flakySubmit{stubSession: s, failures: 1, err: sent, attempts: &attempts}

			res, err := NewPoller(fastConfig(), nil).Run(context.Background(), flaky, nil)
			require.Error(t, err)
			assert.True(t, autofocus.IsTransient(err))
			assert.NotErrorIs(t, err, ErrRetriesExhausted)
			assert.Equal(t, 1, attempts, "a search the server may have accepted is submitted once")
			assert.Equal(t, 0, res.Retries)
			assert.Equal(t, 0, s.fetches)
		})
	}
}

type flakySubmit struct {
	*stubSession
	failures int
	err      error
	attempts *int
}

func (f *flakySubmit) Submit(ctx context.Context) (core.SearchToken, error) {
	*f.attempts++
	if *f.attempts <= f.failures {
		return "", f.err
	}
	return f.stubSession.Submit(ctx)
}

func TestPoller_SubmitHTTPError(t *testing.T) {
	s := &stubSession{submitErr: &autofocus.RemoteRequestError{StatusCode: 401}}

	_, err := NewPoller(fastConfig(), nil).Run(context.Background(), s, nil)
	require.Error(t, err)
	assert.Equal(t, 0, s.fetches)
}

func TestPoller_HandlerErrorStopsRun(t *testing.T) {
	s := &stubSession{steps: []step{{page: page(1, true, "a")}}}
	boom := errors.New("disk full")

	_, err := NewPoller(fastConfig(), nil).Run(context.Background(), s,
		func(ctx context.Context, hits []core.Hit, p *core.ResultPage) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestPoller_ContextCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = time.Hour
	s := &stubSession{steps: []step{{page: page(1, false, "a")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPoller(cfg, nil).Run(ctx, s, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoller_ProgressReportsQuota(t *testing.T) {
	s := &stubSession{steps: []step{{page: page(2, false, "a", "b")}}}
	var last Progress
	p := NewPoller(fastConfig(), nil)
	p.OnProgress(func(pr Progress) { last = pr })

	_, err := p.Run(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, last.NewHits)
	assert.Equal(t, 2, last.Processed)
	assert.Equal(t, 100, last.Bucket.MinutePointsRemaining)
	assert.Equal(t, 1000, last.Bucket.DailyPointsRemaining)
}

func TestCounter_ReturnsServerTotal(t *testing.T) {
	s := &stubSession{steps: []step{{page: queued()}, {page: page(4242, false, "a")}}}
	counter := NewCounter(NewPoller(fastConfig(), nil), func(q core.Query) Session { return s })

	n, err := counter.Count(context.Background(), core.HashListQuery(core.HashMD5, nil))
	require.NoError(t, err)
	assert.Equal(t, 4242, n)
}
