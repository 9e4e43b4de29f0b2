package autofocus

import (
	"context"
	"encoding/json"
	"fmt"

	"afdata/core"
)

type analysisRequest struct {
	APIKey   string   `json:"apiKey"`
	Coverage string   `json:"coverage"`
	Sections []string `json:"sections"`
}

// Coverage is the signature coverage section of a sample analysis
type Coverage struct {
	Coverage map[string]json.RawMessage `json:"coverage"`
	Bucket   core.BucketInfo            `json:"bucket_info"`
}

// Raw returns the coverage section re-encoded, for whole-payload classification
func (c *Coverage) Raw() json.RawMessage {
	b, err := json.Marshal(c.Coverage)
	if err != nil {
		return nil
	}
	return b
}

// SampleCoverage fetches signature coverage for one sample
func (c *Client) SampleCoverage(ctx context.Context, sha256 string) (*Coverage, error) {
	if sha256 == "" {
		return nil, fmt.Errorf("sample coverage requires a sha256 hash")
	}
	req := analysisRequest{
		APIKey:   c.apiKey,
		Coverage: "true",
		Sections: []string{"coverage"},
	}
	var cov Coverage
	if err := c.Post(ctx, fmt.Sprintf("/sample/%s/analysis", sha256), req, &cov); err != nil {
		return nil, err
	}
	return &cov, nil
}

type tagsRequest struct {
	APIKey   string         `json:"apiKey"`
	Query    map[string]any `json:"query"`
	PageSize int            `json:"pageSize"`
	PageNum  int            `json:"pageNum"`
	Scope    string         `json:"scope"`
}

// TagPage is one page of the tag catalogue
type TagPage struct {
	TotalCount int               `json:"total_count"`
	Tags       []json.RawMessage `json:"tags"`
}

// TagPage fetches one page of visible tags. The tags endpoint requires a filter, so a
// tag_group predicate is sent; the server ignores it for visible-scope listings.
func (c *Client) TagPage(ctx context.Context, pageNum, pageSize int) (*TagPage, error) {
	req := tagsRequest{
		APIKey:   c.apiKey,
		Query:    map[string]any{"field": "tag_group", "operator": "is", "value": "Ransomware"},
		PageSize: pageSize,
		PageNum:  pageNum,
		Scope:    "visible",
	}
	var page TagPage
	if err := c.Post(ctx, "/tags", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
