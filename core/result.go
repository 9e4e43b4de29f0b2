package core

import "encoding/json"

// SearchToken is the opaque cookie returned when a search is submitted
type SearchToken string

// SearchParams carries the pagination and scope options sent with a search
type SearchParams struct {
	Size           int
	From           *int
	Scope          string
	Type           string
	ArtifactSource string
}

// ScanParams returns the options used for record-returning sample searches
func ScanParams(size int) SearchParams {
	return SearchParams{Size: size, Scope: "global", Type: "scan", ArtifactSource: "af"}
}

// SessionScanParams returns the options used for session searches
func SessionScanParams(size int) SearchParams {
	return SearchParams{Size: size, Type: "scan"}
}

// CountParams returns the options used when only the server total matters
func CountParams() SearchParams {
	from := 0
	return SearchParams{Size: 50, From: &from, Scope: "global", ArtifactSource: "af"}
}

// BucketInfo is the provider quota snapshot attached to responses
type BucketInfo struct {
	MinutePointsRemaining int `json:"minute_points_remaining"`
	DailyPointsRemaining  int `json:"daily_points_remaining"`
}

// Hit is one raw result record
type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// ResultPage is one polling response
type ResultPage struct {
	Total              *int       `json:"total,omitempty"`
	InProgress         bool       `json:"af_in_progress"`
	CompletePercentage int        `json:"af_complete_percentage"`
	Hits               []Hit      `json:"hits"`
	Bucket             BucketInfo `json:"bucket_info"`
}

// Queued reports whether the server is still queuing the search
func (p *ResultPage) Queued() bool {
	return p.Total == nil
}

// Done reports whether the server has finished the search
func (p *ResultPage) Done() bool {
	return p.Total != nil && !p.InProgress
}

// TotalOrZero returns the server total, or zero while queued
func (p *ResultPage) TotalOrZero() int {
	if p.Total == nil {
		return 0
	}
	return *p.Total
}

// SampleSource is the subset of a sample hit used for enrichment
type SampleSource struct {
	SHA256     string   `json:"sha256"`
	SHA1       string   `json:"sha1"`
	MD5        string   `json:"md5"`
	CreateDate string   `json:"create_date"`
	Malware    *int     `json:"malware"`
	Filetype   *string  `json:"filetype"`
	Tag        []string `json:"tag"`
}

// Hash returns the hash of the requested type
func (s *SampleSource) Hash(h HashType) string {
	switch h {
	case HashMD5:
		return s.MD5
	case HashSHA1:
		return s.SHA1
	default:
		return s.SHA256
	}
}
