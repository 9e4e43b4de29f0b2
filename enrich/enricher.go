// Package enrich turns raw search hits into enriched records and adds signature coverage
// to found samples.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"afdata/core"

	"go.uber.org/zap"
)

// GeoLookup resolves a country code to coordinates; failures resolve to 0,0
type GeoLookup interface {
	Lookup(ctx context.Context, countryCode string) (lat, lon float64)
}

// Config wires the lookup tables used during enrichment
type Config struct {
	// HashType selects the sample field copied into hashvalue
	HashType core.HashType
	Tags     TagLookup
	// Exploits enables exploit_data when set
	Exploits *ExploitTable
	// Geo adds coordinates to session records when set
	Geo GeoLookup
}

// Enricher builds records for one run
type Enricher struct {
	config Config
	logger *zap.SugaredLogger
}

// NewEnricher creates an enricher
func NewEnricher(config Config, logger *zap.SugaredLogger) *Enricher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if config.HashType == "" {
		config.HashType = core.HashSHA256
	}
	return &Enricher{config: config, logger: logger}
}

// Build enriches a page of hits for the run's kind. Hits that cannot be decoded are noted
// as anomalies on state and skipped.
func (e *Enricher) Build(ctx context.Context, hits []core.Hit, state *core.RunState) ([]*core.EnrichedRecord, error) {
	records := make([]*core.EnrichedRecord, 0, len(hits))
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			rec *core.EnrichedRecord
			err error
		)
		if state.Kind == core.KindSessions {
			rec, err = e.Session(ctx, hit, state)
		} else {
			rec, err = e.Sample(hit, state)
		}
		if err != nil {
			state.Note(err.Error())
			e.logger.Warnw("Skipping undecodable hit", "id", hit.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Sample enriches one sample hit
func (e *Enricher) Sample(hit core.Hit, state *core.RunState) (*core.EnrichedRecord, error) {
	var src core.SampleSource
	if err := json.Unmarshal(hit.Source, &src); err != nil {
		return nil, fmt.Errorf("sample %s: %w", hit.ID, err)
	}

	found := true
	rec := &core.EnrichedRecord{
		HashValue:   src.Hash(e.config.HashType),
		SampleFound: &found,
		SHA256Hash:  src.SHA256,
		CreateDate:  src.CreateDate,
		QueryTag:    state.Tag,
		QueryTime:   state.Started.Format(core.QueryTimeLayout),
	}
	if rec.HashValue == "" {
		rec.HashValue = hit.ID
		state.Note(fmt.Sprintf("sample %s has no %s hash", hit.ID, e.config.HashType))
	}

	if src.Malware == nil {
		rec.Verdict = core.VerdictUnknown
		state.Note(fmt.Sprintf("sample %s has no verdict", rec.HashValue))
	} else {
		v, err := core.ParseVerdict(*src.Malware)
		if err != nil {
			state.Note(fmt.Sprintf("sample %s: %v", rec.HashValue, err))
		}
		rec.Verdict = v
	}

	rec.Filetype, rec.FiletypeGroup = FiletypeGroup(src.Filetype)
	if rec.FiletypeGroup == FiletypeNewType {
		e.logger.Debugw("Filetype without a group", "filetype", rec.Filetype)
	}

	if len(src.Tag) > 0 {
		rec.TagProfile = e.classify(src.Tag)
	}
	return rec, nil
}

type sessionSource struct {
	SHA256         string   `json:"sha256"`
	Tstamp         string   `json:"tstamp"`
	DeviceIndustry string   `json:"device_industry"`
	Region         string   `json:"region"`
	DstCountryCode string   `json:"dst_countrycode"`
	DstCountry     string   `json:"dst_country"`
	DstPort        *int     `json:"dst_port"`
	SrcCountryCode string   `json:"src_countrycode"`
	SrcCountry     string   `json:"src_country"`
	SrcPort        *int     `json:"src_port"`
	UploadSrc      string   `json:"upload_src"`
	App            string   `json:"app"`
	Status         string   `json:"status"`
	Tag            []string `json:"tag"`
}

// Session enriches one session hit, geocoding its source and destination countries
func (e *Enricher) Session(ctx context.Context, hit core.Hit, state *core.RunState) (*core.EnrichedRecord, error) {
	var src sessionSource
	if err := json.Unmarshal(hit.Source, &src); err != nil {
		return nil, fmt.Errorf("session %s: %w", hit.ID, err)
	}

	detail := &core.SessionDetail{
		SHA256:         src.SHA256,
		Tstamp:         src.Tstamp,
		DeviceIndustry: src.DeviceIndustry,
		Region:         src.Region,
		DstCountryCode: src.DstCountryCode,
		DstCountry:     src.DstCountry,
		DstPort:        src.DstPort,
		SrcCountryCode: src.SrcCountryCode,
		SrcCountry:     src.SrcCountry,
		SrcPort:        src.SrcPort,
		UploadSrc:      src.UploadSrc,
		App:            src.App,
		Status:         src.Status,
	}
	if e.config.Geo != nil {
		if code := strings.TrimSpace(src.DstCountryCode); code != "" {
			lat, lon := e.config.Geo.Lookup(ctx, code)
			detail.DstLat, detail.DstLon = &lat, &lon
		}
		if code := strings.TrimSpace(src.SrcCountryCode); code != "" {
			lat, lon := e.config.Geo.Lookup(ctx, code)
			detail.SrcLat, detail.SrcLon = &lat, &lon
		}
	}

	rec := &core.EnrichedRecord{
		SessionID:     hit.ID,
		QueryTag:      state.Tag,
		QueryTime:     state.Started.Format(core.QueryTimeLayout),
		SessionDetail: detail,
	}
	if len(src.Tag) > 0 {
		rec.TagProfile = e.classify(src.Tag)
	}
	return rec, nil
}

func (e *Enricher) classify(tags []string) *core.TagProfile {
	profile, misses := ClassifyTags(tags, e.config.Tags, e.config.Exploits)
	if len(misses) > 0 {
		e.logger.Debugw("Tags missing from taxonomy", "tags", misses)
	}
	return profile
}
