package core

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStarted = time.Date(2020, time.March, 4, 5, 6, 7, 123456000, time.UTC)

func foundRecord(hash string, verdict Verdict) *EnrichedRecord {
	found := true
	return &EnrichedRecord{HashValue: hash, SampleFound: &found, Verdict: verdict, QueryTag: "t"}
}

func TestRunState_AddDeduplicates(t *testing.T) {
	s := NewRunState("t", KindSamples, testStarted)

	assert.True(t, s.Add(foundRecord("AA", VerdictMalware)))
	assert.False(t, s.Add(foundRecord("aa", VerdictMalware)), "keys compare case-insensitively")
	assert.True(t, s.Add(foundRecord("bb", VerdictBenign)))

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("Aa"))
	assert.False(t, s.Has("cc"))
	assert.NotEmpty(t, s.ID)
}

func TestRunState_AddAllReturnsOnlyNew(t *testing.T) {
	s := NewRunState("t", KindSamples, testStarted)
	s.Add(foundRecord("aa", VerdictMalware))

	added := s.AddAll([]*EnrichedRecord{foundRecord("aa", VerdictMalware), foundRecord("bb", VerdictBenign)})
	require.Len(t, added, 1)
	assert.Equal(t, "bb", added[0].HashValue)
}

func TestRunState_MissingKeepsInputOrderOnce(t *testing.T) {
	s := NewRunState("t", KindSamples, testStarted)
	s.Add(foundRecord("b", VerdictBenign))

	missing := s.Missing([]string{"c", "b", "a", "c", " ", "A"})
	assert.Equal(t, []string{"c", "a"}, missing)
}

// found ∪ not-found must equal the input set exactly once for arbitrary subsets
func TestRunState_CompletenessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		n := rng.Intn(300)
		inputs := make([]string, n)
		for i := range inputs {
			inputs[i] = fmt.Sprintf("%032x", rng.Int63())
		}

		s := NewRunState("prop", KindSamples, testStarted)
		for _, in := range inputs {
			if rng.Intn(2) == 0 {
				s.Add(foundRecord(in, VerdictMalware))
			}
		}
		for _, miss := range s.Missing(inputs) {
			require.True(t, s.Add(NotFoundRecord(miss, "prop", testStarted)))
		}

		seen := make(map[string]int)
		for _, r := range s.Records {
			seen[r.HashValue]++
		}
		require.Len(t, seen, len(inputs), "iteration %d", iter)
		for _, in := range inputs {
			require.Equal(t, 1, seen[in], "input %s must appear exactly once", in)
		}
	}
}

func TestRunState_Summarize(t *testing.T) {
	s := NewRunState("t", KindSamples, testStarted)

	mal := foundRecord("m1", VerdictMalware)
	mal.SigCoverage = &SigCoverage{}
	mal.SigCoverage.Set(SigFamilyWFAV, json.RawMessage(`[{"current":true}]`))
	s.Add(mal)
	s.Add(foundRecord("m2", VerdictMalware))
	s.Add(foundRecord("b1", VerdictBenign))
	s.Add(NotFoundRecord("n1", "t", testStarted))
	s.Note("hash x: unknown verdict code: 7")

	sum := s.Summarize()
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 3, sum.Found)
	assert.Equal(t, 1, sum.NotFound)
	assert.Equal(t, 2, sum.Verdicts[VerdictMalware])
	assert.Equal(t, 1, sum.Verdicts[VerdictBenign])
	assert.Equal(t, 1, sum.MalwareSigs[SigActive])
	assert.Equal(t, 1, sum.Anomalies)
}

func TestNotFoundRecord(t *testing.T) {
	r := NotFoundRecord("abc", "mytag", testStarted)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"hashvalue":"abc",
		"sample_found":false,
		"create_date":"2020-03-04T05:06:07",
		"query_tag":"mytag",
		"query_time":"2020-03-04 05:06:07.123456",
		"verdict":"No Sample Found"}`, string(b))
	assert.False(t, r.Found())
}

func TestEnrichedRecord_JSONRoundTripKeepsEmbeddedSections(t *testing.T) {
	port := 443
	r := foundRecord("h", VerdictGrayware)
	r.TagProfile = &TagProfile{AllTags: []string{"Unit42.X"}, PriorityTagsPublic: []string{}, PriorityTagsName: []string{},
		TagClasses: []string{}, MalwareTags: []string{}, CampaignTags: []string{}, ActorTags: []string{}, ExploitTags: []string{}}
	r.SessionDetail = &SessionDetail{DstPort: &port, App: "web-browsing"}

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"priority_tags_public":[]`)
	assert.NotContains(t, string(b), `sig_state_all`)

	var back EnrichedRecord
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.TagProfile)
	require.NotNil(t, back.SessionDetail)
	assert.Nil(t, back.SigCoverage)
	assert.Equal(t, 443, *back.DstPort)
	assert.Equal(t, []string{"Unit42.X"}, back.AllTags)
}
