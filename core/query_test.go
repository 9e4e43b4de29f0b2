package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHashType(t *testing.T) {
	tests := []struct {
		in      string
		want    HashType
		wantErr bool
	}{
		{"md5", HashMD5, false},
		{"SHA1", HashSHA1, false},
		{" sha256 ", HashSHA256, false},
		{"sha512", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHashType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsupportedHashType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashListQuery(t *testing.T) {
	q := HashListQuery(HashMD5, []string{"aa", "bb"})

	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"operator":"all","children":[{"field":"sample.md5","operator":"is in the list","value":["aa","bb"]}]}`,
		string(b))
}

func TestHashListQuery_EmptyList(t *testing.T) {
	q := HashListQuery(HashSHA256, nil)
	assert.Contains(t, q.String(), `"value":[]`, "nil values must render as an empty list")
}

func TestThreatNameQuery(t *testing.T) {
	q := ThreatNameQuery([2]string{"2018-06-01T00:00:00", "2018-08-08T23:59:59"}, []string{"Virus/Win32.WGeneric"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(q.String()), &decoded))
	children := decoded["children"].([]any)
	require.Len(t, children, 2)
	assert.Equal(t, "sample.create_date", children[0].(map[string]any)["field"])
	assert.Equal(t, "is after", children[0].(map[string]any)["operator"])
	assert.Equal(t, "sample.threat_name", children[1].(map[string]any)["field"])
}

func TestNodeMarshal_NestedGroups(t *testing.T) {
	root := All(
		Leaf(FieldMalware, OpIs, 1),
		Any(Leaf("sample.filetype", OpIs, "ELF"), Leaf("sample.filetype", OpIs, "Shell Script")),
	)

	q, err := NewQuery(root)
	require.NoError(t, err)
	assert.JSONEq(t, `{"operator":"all","children":[
		{"field":"sample.malware","operator":"is","value":1},
		{"operator":"any","children":[
			{"field":"sample.filetype","operator":"is","value":"ELF"},
			{"field":"sample.filetype","operator":"is","value":"Shell Script"}]}]}`, q.String())
}

func TestDateRange(t *testing.T) {
	from := time.Date(2019, time.February, 1, 13, 0, 0, 0, time.UTC)
	to := time.Date(2019, time.February, 28, 0, 0, 0, 0, time.UTC)

	b, err := json.Marshal(DateRange(from, to))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"field":"sample.create_date","operator":"is in the range","value":["2019-02-01T00:00:00","2019-02-28T23:59:59"]}`,
		string(b))
}

func TestRawQuery(t *testing.T) {
	q, err := RawQuery([]byte(`  {"operator":"all",
		"children":[]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"operator":"all","children":[]}`, q.String())

	_, err = RawQuery([]byte(`["not","an","object"]`))
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = RawQuery([]byte(`{"broken":`))
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryMarshal_ReturnsCopy(t *testing.T) {
	q := HashListQuery(HashSHA1, []string{"x"})
	b, err := q.MarshalJSON()
	require.NoError(t, err)
	b[0] = '['
	assert.Equal(t, byte('{'), q.String()[0], "callers must not be able to mutate a submitted query")
}

func TestQueryMarshal_Zero(t *testing.T) {
	var q Query
	assert.True(t, q.IsZero())
	_, err := json.Marshal(q)
	assert.Error(t, err)
}
