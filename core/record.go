package core

import (
	"encoding/json"
	"time"
)

// Timestamp layouts written into records
const (
	QueryTimeLayout  = "2006-01-02 15:04:05.000000"
	CreateDateLayout = "2006-01-02T15:04:05"
)

// ExploitInfo is the firewall exploit signature matched to a CVE tag
type ExploitInfo struct {
	CVE        string `json:"cve_value"`
	ThreatName string `json:"threat name"`
	Category   string `json:"category"`
	Severity   string `json:"severity"`
}

// TagProfile holds the taxonomy-derived tag fields of a record
type TagProfile struct {
	AllTags            []string      `json:"all_tags"`
	PriorityTagsPublic []string      `json:"priority_tags_public"`
	PriorityTagsName   []string      `json:"priority_tags_name"`
	TagClasses         []string      `json:"tag_classes"`
	MalwareTags        []string      `json:"malware_tags"`
	CampaignTags       []string      `json:"campaign_tags"`
	ActorTags          []string      `json:"actor_tags"`
	ExploitTags        []string      `json:"exploit_tags"`
	TagGroups          []string      `json:"tag_groups,omitempty"`
	ExploitData        []ExploitInfo `json:"exploit_data,omitempty"`
}

// SessionDetail holds the session fields copied from a session hit
type SessionDetail struct {
	SHA256         string   `json:"sha256,omitempty"`
	Tstamp         string   `json:"tstamp,omitempty"`
	DeviceIndustry string   `json:"device_industry,omitempty"`
	Region         string   `json:"region,omitempty"`
	DstCountryCode string   `json:"dst_countrycode,omitempty"`
	DstCountry     string   `json:"dst_country,omitempty"`
	DstPort        *int     `json:"dst_port,omitempty"`
	DstLat         *float64 `json:"dst_lat,omitempty"`
	DstLon         *float64 `json:"dst_lon,omitempty"`
	SrcCountryCode string   `json:"src_countrycode,omitempty"`
	SrcCountry     string   `json:"src_country,omitempty"`
	SrcPort        *int     `json:"src_port,omitempty"`
	SrcLat         *float64 `json:"src_lat,omitempty"`
	SrcLon         *float64 `json:"src_lon,omitempty"`
	UploadSrc      string   `json:"upload_src,omitempty"`
	App            string   `json:"app,omitempty"`
	Status         string   `json:"status,omitempty"`
}

// SigCoverage holds the signature coverage detail added by the coverage pass
type SigCoverage struct {
	DNSSig          json.RawMessage `json:"dns_sig,omitempty"`
	DNSSigState     SigState        `json:"dns_sig_sig_state,omitempty"`
	WFAVSig         json.RawMessage `json:"wf_av_sig,omitempty"`
	WFAVSigState    SigState        `json:"wf_av_sig_sig_state,omitempty"`
	FileURLSig      json.RawMessage `json:"fileurl_sig,omitempty"`
	FileURLSigState SigState        `json:"fileurl_sig_sig_state,omitempty"`
	SigStateAll     SigState        `json:"sig_state_all,omitempty"`
}

// Set records the raw payload and state of one signature family
func (c *SigCoverage) Set(family string, raw json.RawMessage) {
	state := ClassifyCoverage(raw)
	switch family {
	case SigFamilyDNS:
		c.DNSSig, c.DNSSigState = raw, state
	case SigFamilyWFAV:
		c.WFAVSig, c.WFAVSigState = raw, state
	case SigFamilyFileURL:
		c.FileURLSig, c.FileURLSigState = raw, state
	}
}

// EnrichedRecord is one hit (or one not-found input) with its derived fields
type EnrichedRecord struct {
	HashValue     string  `json:"hashvalue,omitempty"`
	SampleFound   *bool   `json:"sample_found,omitempty"`
	SessionID     string  `json:"session_id,omitempty"`
	SHA256Hash    string  `json:"sha256hash,omitempty"`
	CreateDate    string  `json:"create_date,omitempty"`
	QueryTag      string  `json:"query_tag"`
	QueryTime     string  `json:"query_time"`
	Verdict       Verdict `json:"verdict,omitempty"`
	Filetype      string  `json:"filetype,omitempty"`
	FiletypeGroup string  `json:"filetype_group,omitempty"`

	*TagProfile
	*SessionDetail
	*SigCoverage
}

// Key identifies the record inside a run
func (r *EnrichedRecord) Key() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.HashValue
}

// Found reports whether the record came from a search hit
func (r *EnrichedRecord) Found() bool {
	return r.SampleFound == nil || *r.SampleFound
}

// NotFoundRecord builds the placeholder written for an input with no matching sample
func NotFoundRecord(hash, tag string, started time.Time) *EnrichedRecord {
	found := false
	return &EnrichedRecord{
		HashValue:   hash,
		SampleFound: &found,
		QueryTag:    tag,
		QueryTime:   started.Format(QueryTimeLayout),
		CreateDate:  started.Format(CreateDateLayout),
		Verdict:     VerdictNotFound,
	}
}
