package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		code int
		want Verdict
	}{
		{0, VerdictBenign},
		{1, VerdictMalware},
		{2, VerdictGrayware},
		{3, VerdictPhishing},
	}
	for _, tt := range tests {
		got, err := ParseVerdict(tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "code %d", tt.code)
	}
}

func TestParseVerdict_UnknownCode(t *testing.T) {
	for _, code := range []int{-1, 4, 99} {
		got, err := ParseVerdict(code)
		require.Error(t, err, "code %d must be surfaced", code)
		assert.ErrorIs(t, err, ErrUnknownVerdict)
		assert.Equal(t, VerdictUnknown, got)
	}
}

func TestClassifyCoverage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    SigState
	}{
		{"active flag", `[{"name":"Trojan/Win32.x","latestContentVersion":"1","current":true}]`, SigActive},
		{"mixed flags", `[{"current":false},{"current":true}]`, SigActive},
		{"inactive only", `[{"current":false,"name":"x"}]`, SigInactive},
		{"nested inactive", `{"entries":[{"meta":{"current":false}}]}`, SigInactive},
		{"empty list", `[]`, SigNone},
		{"no booleans", `[{"name":"x","count":3}]`, SigNone},
		{"null", `null`, SigNone},
		{"missing", ``, SigNone},
		{"string true is not a flag", `[{"name":"true"}]`, SigNone},
	}
	for _, family := range SigFamilies() {
		for _, tt := range tests {
			t.Run(family+"/"+tt.name, func(t *testing.T) {
				var c SigCoverage
				c.Set(family, json.RawMessage(tt.payload))
				assert.Equal(t, tt.want, ClassifyCoverage(json.RawMessage(tt.payload)))
				switch family {
				case SigFamilyDNS:
					assert.Equal(t, tt.want, c.DNSSigState)
				case SigFamilyWFAV:
					assert.Equal(t, tt.want, c.WFAVSigState)
				case SigFamilyFileURL:
					assert.Equal(t, tt.want, c.FileURLSigState)
				}
			})
		}
	}
}
