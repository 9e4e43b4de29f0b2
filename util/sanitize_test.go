package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name             string
		input            string
		shouldNotContain string
		shouldContain    string
	}{
		{
			name:             "json api key",
			input:            `{"apiKey":"0123456789abcdef","query":{}}`,
			shouldNotContain: "0123456789abcdef",
			shouldContain:    `"apiKey":"REDACTED"`,
		},
		{
			name:             "geocoder url key",
			input:            "GET https://maps.googleapis.com/maps/api/geocode/json?components=country:US&key=AIzaSecret",
			shouldNotContain: "AIzaSecret",
			shouldContain:    "&key=REDACTED",
		},
		{
			name:             "curl basic auth",
			input:            "curl -s -XPOST 'http://localhost:9200/_bulk' -u elastic:changeme",
			shouldNotContain: "changeme",
			shouldContain:    "-u elastic:REDACTED",
		},
		{
			name:             "token assignment",
			input:            "vault lookup failed: token=s.abcdef",
			shouldNotContain: "s.abcdef",
			shouldContain:    "token=REDACTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeString(tt.input)
			assert.NotContains(t, out, tt.shouldNotContain)
			assert.Contains(t, out, tt.shouldContain)
		})
	}
}

func TestSanitizeString_NoSensitiveData(t *testing.T) {
	msg := `{"message":"Invalid query: unknown field sample.foo"}`
	assert.Equal(t, msg, SanitizeString(msg))
	assert.Equal(t, "", SanitizeString(""))
}

func TestSanitizeString_Truncates(t *testing.T) {
	out := SanitizeString(strings.Repeat("a", MaxSanitizeLength+10))
	assert.True(t, strings.HasSuffix(out, "... [truncated]"))
	assert.LessOrEqual(t, len(out), MaxSanitizeLength+len("... [truncated]"))
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", SanitizeError(nil))
	assert.Equal(t, "apiKey=REDACTED", SanitizeError(errors.New("apiKey=abc123")))
}
