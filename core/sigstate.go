package core

import (
	"bytes"
	"encoding/json"
)

// SigState is the signature coverage state of one signature family
type SigState string

const (
	SigActive   SigState = "active"
	SigInactive SigState = "inactive"
	SigNone     SigState = "none"
)

// Signature families reported in the coverage section
const (
	SigFamilyDNS     = "dns_sig"
	SigFamilyWFAV    = "wf_av_sig"
	SigFamilyFileURL = "fileurl_sig"
)

// SigFamilies lists the coverage families in output order
func SigFamilies() []string {
	return []string{SigFamilyDNS, SigFamilyWFAV, SigFamilyFileURL}
}

// ClassifyCoverage returns active when any boolean in the payload is true, inactive when
// booleans are present but none is true, and none otherwise.
func ClassifyCoverage(raw json.RawMessage) SigState {
	if len(bytes.TrimSpace(raw)) == 0 {
		return SigNone
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return SigNone
	}
	sawTrue, sawFalse := scanBools(v)
	switch {
	case sawTrue:
		return SigActive
	case sawFalse:
		return SigInactive
	default:
		return SigNone
	}
}

func scanBools(v any) (sawTrue, sawFalse bool) {
	switch t := v.(type) {
	case bool:
		return t, !t
	case []any:
		for _, item := range t {
			tr, fa := scanBools(item)
			sawTrue = sawTrue || tr
			sawFalse = sawFalse || fa
		}
	case map[string]any:
		for _, item := range t {
			tr, fa := scanBools(item)
			sawTrue = sawTrue || tr
			sawFalse = sawFalse || fa
		}
	}
	return sawTrue, sawFalse
}
