package autofocus

import (
	"context"
	"fmt"
	"sync"

	"afdata/core"
)

type searchRequest struct {
	APIKey         string     `json:"apiKey"`
	Query          core.Query `json:"query"`
	Size           int        `json:"size,omitempty"`
	From           *int       `json:"from,omitempty"`
	Scope          string     `json:"scope,omitempty"`
	Type           string     `json:"type,omitempty"`
	ArtifactSource string     `json:"artifactSource,omitempty"`
}

type searchResponse struct {
	Cookie string `json:"af_cookie"`
}

type keyOnly struct {
	APIKey string `json:"apiKey"`
}

func kindPath(kind core.RunKind) string {
	if kind == core.KindSessions {
		return "/sessions"
	}
	return "/samples"
}

// SubmitSearch posts a search and returns its cookie
func (c *Client) SubmitSearch(ctx context.Context, kind core.RunKind, q core.Query, p core.SearchParams) (core.SearchToken, error) {
	req := searchRequest{
		APIKey:         c.apiKey,
		Query:          q,
		Size:           p.Size,
		From:           p.From,
		Scope:          p.Scope,
		Type:           p.Type,
		ArtifactSource: p.ArtifactSource,
	}

	var resp searchResponse
	if err := c.Post(ctx, kindPath(kind)+"/search", req, &resp); err != nil {
		return "", err
	}
	if resp.Cookie == "" {
		return "", ErrNoCookie
	}

	c.logger.Debugw("Search submitted", "kind", kind, "cookie", resp.Cookie)
	return core.SearchToken(resp.Cookie), nil
}

// FetchResults polls the results of a submitted search. A page without a total means
// the search is still queuing.
func (c *Client) FetchResults(ctx context.Context, kind core.RunKind, token core.SearchToken) (*core.ResultPage, error) {
	var page core.ResultPage
	path := fmt.Sprintf("%s/results/%s", kindPath(kind), token)
	if err := c.Post(ctx, path, keyOnly{APIKey: c.apiKey}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Session is one submitted search. Submit is called once; Fetch may be called any number
// of times with the same cookie.
type Session struct {
	client *Client
	kind   core.RunKind
	query  core.Query
	params core.SearchParams

	mu    sync.Mutex
	token core.SearchToken
}

// NewSession prepares a search without submitting it
func NewSession(client *Client, kind core.RunKind, q core.Query, p core.SearchParams) *Session {
	return &Session{client: client, kind: kind, query: q, params: p}
}

// Submit posts the query. Calling it again returns ErrAlreadySubmitted.
func (s *Session) Submit(ctx context.Context) (core.SearchToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, ErrAlreadySubmitted
	}
	token, err := s.client.SubmitSearch(ctx, s.kind, s.query, s.params)
	if err != nil {
		return "", err
	}
	s.token = token
	return token, nil
}

// Fetch polls for the current result page
func (s *Session) Fetch(ctx context.Context) (*core.ResultPage, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNotSubmitted
	}
	return s.client.FetchResults(ctx, s.kind, token)
}

// Token returns the search cookie, empty before submission
func (s *Session) Token() core.SearchToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
