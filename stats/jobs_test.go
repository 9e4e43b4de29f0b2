package stats

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"afdata/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	queries []string
	counts  []int
	err     error
	failAt  int
}

func (f *fakeCounter) Count(_ context.Context, q core.Query) (int, error) {
	f.queries = append(f.queries, q.String())
	if f.err != nil && len(f.queries) == f.failAt {
		return 0, f.err
	}
	if len(f.counts) == 0 {
		return 0, nil
	}
	return f.counts[(len(f.queries)-1)%len(f.counts)], nil
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newJobs(counter Counter, cfg Config, now string) *Jobs {
	j := NewJobs(counter, cfg, nil)
	j.now = func() time.Time { return date(now) }
	return j
}

func readBulk(t *testing.T, path string) [][2]map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, 0, len(lines)%2, "bulk files hold directive/document pairs")

	pairs := make([][2]map[string]any, 0, len(lines)/2)
	for i := 0; i < len(lines); i += 2 {
		pairs = append(pairs, [2]map[string]any{lines[i], lines[i+1]})
	}
	return pairs
}

func indexOf(directive map[string]any) string {
	return directive["index"].(map[string]any)["_index"].(string)
}

func TestMonths(t *testing.T) {
	months := Months(date("2019-11-20"), date("2020-02-03"))
	require.Len(t, months, 4)
	assert.Equal(t, "2019-11", months[0].Label())
	assert.Equal(t, "2020-02", months[3].Label())
	assert.Equal(t, 29, months[3].Days(), "leap year February")
	assert.Equal(t, 30, months[0].Days())
	assert.Equal(t, "2019-12-31", months[1].Last.Format("2006-01-02"))

	assert.Empty(t, Months(date("2021-01-01"), date("2020-12-31")))
}

func TestDailyAverage(t *testing.T) {
	assert.Equal(t, 3, DailyAverage(100, 31))
	assert.Equal(t, 0, DailyAverage(10, 31))
	assert.Equal(t, 0, DailyAverage(10, 0))
}

func TestDays(t *testing.T) {
	days := Days(date("2020-01-30"), date("2020-02-05"), 3)
	require.Len(t, days, 3)
	assert.Equal(t, "2020-02-02", days[1].Format("2006-01-02"))
	assert.Equal(t, "2020-02-05", days[2].Format("2006-01-02"))

	assert.Len(t, Days(date("2020-01-01"), date("2020-01-03"), 0), 3)
}

func TestQueries(t *testing.T) {
	m := MonthOf(date("2020-02-10"))

	q := core.MustQuery(MonthlyMalwareQuery(m, true)).String()
	assert.Contains(t, q, `{"field":"sample.malware","operator":"is","value":1}`)
	assert.Contains(t, q, `{"field":"session.upload_src","operator":"is not","value":"Manual API"}`)
	assert.Contains(t, q, `"value":["2020-02-01T00:00:00","2020-02-29T23:59:59"]`)
	assert.NotContains(t, core.MustQuery(MonthlyMalwareQuery(m, false)).String(), "upload_src")

	q = core.MustQuery(UploadSourceQuery(m, "Traps", false)).String()
	assert.Contains(t, q, `{"field":"session.upload_src","operator":"is","value":"Traps"}`)
	assert.NotContains(t, q, "sample.malware")

	q = core.MustQuery(TagGroupQuery(m, "Ransomware")).String()
	assert.Contains(t, q, `{"field":"sample.tag_group","operator":"is","value":"Ransomware"}`)
	assert.Contains(t, q, "sample.malware")
}

func TestTagGroupDailyQuery_Roles(t *testing.T) {
	day := date("2020-03-04")

	standard := core.MustQuery(TagGroupDailyQuery(day, "Worm", RoleStandard)).String()
	assert.Contains(t, standard, `"value":["2020-03-04T00:00:00","2020-03-04T23:59:59"]`)
	assert.Contains(t, standard, `{"field":"sample.tag","operator":"is not in the list","value":["Unit42.VirLock"]}`)
	assert.Contains(t, standard, `"Manual API"`)
	assert.NotContains(t, standard, "device_acctname")

	researcher := core.MustQuery(TagGroupDailyQuery(day, "Worm", RoleResearcher)).String()
	assert.Contains(t, researcher, `{"field":"session.device_acctname","operator":"does not contain","value":"Palo"}`)
	assert.Contains(t, researcher, `{"field":"session.device_acctname","operator":"does not contain","value":"palo"}`)
	assert.Contains(t, researcher, "Unit42.VirLock")

	other := core.MustQuery(TagGroupDailyQuery(day, "Worm", "")).String()
	assert.NotContains(t, other, "sample.malware")
	assert.NotContains(t, other, "Unit42.VirLock")
	assert.Contains(t, other, `"value":"Worm"`)
}

func TestMonthlyMalware(t *testing.T) {
	dir := t.TempDir()
	counter := &fakeCounter{counts: []int{310, 62}}
	j := newJobs(counter, Config{Start: date("2020-01-15"), OutCSV: dir}, "2020-02-10")

	var steps []Step
	j.OnStep(func(s Step) { steps = append(steps, s) })

	report, err := j.MonthlyMalware(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)
	assert.Len(t, counter.queries, 4)
	assert.Len(t, steps, 4)

	f, err := os.Open(filepath.Join(dir, MonthlyMalwareFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, MonthlyMalwareHeader, rows[0])
	assert.Equal(t, []string{"2020-01", "310", "10", "62", "2"}, rows[1])
	assert.Equal(t, []string{"2020-02", "310", "10", "62", "2"}, rows[2])
}

func TestMonthlyMalware_RequiresStart(t *testing.T) {
	j := newJobs(&fakeCounter{}, Config{OutCSV: t.TempDir()}, "2020-02-10")
	_, err := j.MonthlyMalware(context.Background())
	assert.Error(t, err)
}

func TestUploadSource(t *testing.T) {
	dir := t.TempDir()
	counter := &fakeCounter{counts: []int{31, 62}}
	j := newJobs(counter, Config{Start: date("2020-01-01"), OutJSON: dir}, "2020-01-20")

	report, err := j.UploadSource(context.Background(), []string{"Firewall", "Traps"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)
	assert.Len(t, counter.queries, 4)
	assert.Contains(t, counter.queries[0], "sample.malware")
	assert.NotContains(t, counter.queries[1], "sample.malware")

	pairs := readBulk(t, filepath.Join(dir, UploadSourceFile))
	require.Len(t, pairs, 2)
	assert.Equal(t, SourceIndex, indexOf(pairs[0][0]))
	doc := pairs[1][1]
	assert.Equal(t, "2020-01", doc["date"])
	assert.Equal(t, "Traps", doc["upload_source"])
	assert.Equal(t, float64(31), doc["malware_monthly_count"])
	assert.Equal(t, float64(1), doc["malware_daily_average"])
	assert.Equal(t, float64(62), doc["all_verdict_monthly_count"])
	assert.Equal(t, float64(2), doc["all_verdict_daily_average"])
}

func TestTagGroupMonthly_DefaultGroups(t *testing.T) {
	dir := t.TempDir()
	counter := &fakeCounter{counts: []int{5}}
	j := newJobs(counter, Config{Start: date("2020-01-01"), OutJSON: dir}, "2020-01-02")

	report, err := j.TagGroupMonthly(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultTagGroups), report.Rows)

	pairs := readBulk(t, filepath.Join(dir, TagGroupFile))
	require.Len(t, pairs, len(DefaultTagGroups))
	assert.Equal(t, TagGroupIndex, indexOf(pairs[0][0]))
	assert.Equal(t, DefaultTagGroups[0], pairs[0][1]["tag_group"])
	assert.Equal(t, float64(5), pairs[0][1]["malware_monthly_count"])
}

func TestTagGroupDaily(t *testing.T) {
	dir := t.TempDir()
	counter := &fakeCounter{counts: []int{7}}
	cfg := Config{
		Start:        date("2020-01-31"),
		End:          date("2020-02-01"),
		IntervalDays: 1,
		OutJSON:      dir,
		Role:         RoleResearcher,
	}
	j := newJobs(counter, cfg, "2020-03-01")

	report, err := j.TagGroupDaily(context.Background(), []string{"Worm", "Ransomware"})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, filepath.Join(dir, "tag_group_daily_summary_2020-01-31_2020-02-01.json"), report.Path)
	for _, q := range counter.queries {
		assert.Contains(t, q, "device_acctname")
	}

	pairs := readBulk(t, report.Path)
	require.Len(t, pairs, 4)
	assert.Equal(t, "tag_group_stats_daily-2020-01", indexOf(pairs[0][0]))
	assert.Equal(t, "tag_group_stats_daily-2020-02", indexOf(pairs[3][0]))
	assert.Equal(t, "2020-02-01", pairs[3][1]["date"])
	assert.Equal(t, "Ransomware", pairs[3][1]["metrics.threat.tag.group.name"])
	assert.Equal(t, float64(7), pairs[3][1]["metrics.threat.tag.group.count"])
}

func TestTagGroupDaily_Validation(t *testing.T) {
	j := newJobs(&fakeCounter{}, Config{Start: date("2020-02-01"), End: date("2020-01-01"), OutJSON: t.TempDir()}, "2020-03-01")
	_, err := j.TagGroupDaily(context.Background(), []string{"Worm"})
	assert.Error(t, err)

	_, err = j.TagGroupDaily(context.Background(), nil)
	assert.Error(t, err)
}

func TestCountErrorStopsJob(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	counter := &fakeCounter{counts: []int{1}, err: boom, failAt: 3}
	j := newJobs(counter, Config{Start: date("2020-01-01"), OutCSV: dir}, "2020-03-01")

	report, err := j.MonthlyMalware(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, report.Rows)
	assert.Len(t, counter.queries, 3)

	data, err := os.ReadFile(filepath.Join(dir, MonthlyMalwareFile))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"), "completed rows stay readable")
}
