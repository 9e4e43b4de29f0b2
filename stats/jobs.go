// Package stats computes aggregate sample counts over calendar months and days with
// count-only searches, writing CSV tables and Elasticsearch bulk-load files.
package stats

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"afdata/core"
	"afdata/sink"

	"go.uber.org/zap"
)

// Counter returns the server total for a query
type Counter interface {
	Count(ctx context.Context, q core.Query) (int, error)
}

// Role selects the filters applied to daily tag group counts
type Role string

const (
	// RoleStandard counts malware outside manual API uploads
	RoleStandard Role = "standard"
	// RoleResearcher additionally drops samples uploaded by vendor accounts
	RoleResearcher Role = "researcher"
)

// Index names used in the bulk-load output
const (
	SourceIndex   = "source_stats"
	TagGroupIndex = "tag_group_stats"
)

// Output file names
const (
	MonthlyMalwareFile = "monthly_malware_stats.csv"
	UploadSourceFile   = "upload_source_summary.json"
	TagGroupFile       = "tag_group_summary.json"
)

// MonthlyMalwareHeader is the header row of the monthly malware table
var MonthlyMalwareHeader = []string{"month", "total_malware", "total_daily_avg", "noAPI_malware", "noAPI_daily_avg"}

// DefaultUploadSources are the upload sources broken out by the source job
var DefaultUploadSources = []string{
	"Firewall",
	"Proofpoint",
	"Traps",
	"Magnifier",
	"Manual API",
	"Traps Android",
	"WF Appliance",
}

// DefaultTagGroups are the tag groups counted by the monthly tag group job
var DefaultTagGroups = []string{
	"AdWare",
	"Android",
	"BankingTrojan",
	"ExploitKit",
	"FileInfector",
	"HackingTool",
	"Linux",
	"OSX",
	"PointofSale",
	"Ransomware",
	"Worm",
	"DDoS",
	"CryptoMiner",
}

// excludedTags are never counted towards a tag group by the daily job
var excludedTags = []string{"Unit42.VirLock"}

// Config parameterizes the jobs
type Config struct {
	// Start is the first month (or day, for the daily job) counted
	Start time.Time
	// End is the last day counted by the daily job; monthly jobs run through the current month
	End          time.Time
	IntervalDays int
	OutJSON      string
	OutCSV       string
	Role         Role
}

// Step is reported after every count
type Step struct {
	Label string
	Count int
}

// Report describes one finished job
type Report struct {
	Path    string
	Rows    int
	Elapsed time.Duration
}

// Jobs runs the statistics jobs against one counter
type Jobs struct {
	counter Counter
	config  Config
	logger  *zap.SugaredLogger
	onStep  func(Step)
	now     func() time.Time
}

// NewJobs creates the job runner
func NewJobs(counter Counter, config Config, logger *zap.SugaredLogger) *Jobs {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Jobs{counter: counter, config: config, logger: logger, now: time.Now}
}

// OnStep registers a callback invoked after every count
func (j *Jobs) OnStep(fn func(Step)) {
	j.onStep = fn
}

func (j *Jobs) months() ([]Month, error) {
	if j.config.Start.IsZero() {
		return nil, errors.New("stats start date is required")
	}
	months := Months(j.config.Start, j.now())
	if len(months) == 0 {
		return nil, fmt.Errorf("stats start %s is in the future", j.config.Start.Format("2006-01-02"))
	}
	return months, nil
}

func (j *Jobs) count(ctx context.Context, label string, root core.Node) (int, error) {
	q, err := core.NewQuery(root)
	if err != nil {
		return 0, err
	}
	n, err := j.counter.Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count for %s: %w", label, err)
	}
	j.logger.Debugw("Count complete", "label", label, "count", n)
	if j.onStep != nil {
		j.onStep(Step{Label: label, Count: n})
	}
	return n, nil
}

// MonthlyMalwareQuery counts malware created in m, optionally excluding manual API uploads
func MonthlyMalwareQuery(m Month, excludeAPI bool) core.Node {
	children := []core.Node{core.Leaf(core.FieldMalware, core.OpIs, 1)}
	if excludeAPI {
		children = append(children, core.Leaf(core.FieldUploadSource, core.OpIsNot, core.UploadSourceManualAPI))
	}
	return core.All(append(children, core.DateRange(m.First, m.Last))...)
}

// UploadSourceQuery counts samples from source created in m; malwareOnly restricts to malware
func UploadSourceQuery(m Month, source string, malwareOnly bool) core.Node {
	var children []core.Node
	if malwareOnly {
		children = append(children, core.Leaf(core.FieldMalware, core.OpIs, 1))
	}
	children = append(children,
		core.Leaf(core.FieldUploadSource, core.OpIs, source),
		core.DateRange(m.First, m.Last),
	)
	return core.All(children...)
}

// TagGroupQuery counts malware in group created in m
func TagGroupQuery(m Month, group string) core.Node {
	return core.All(
		core.Leaf(core.FieldMalware, core.OpIs, 1),
		core.Leaf(core.FieldTagGroup, core.OpIs, group),
		core.DateRange(m.First, m.Last),
	)
}

// TagGroupDailyQuery counts samples in group created on day, filtered for role
func TagGroupDailyQuery(day time.Time, group string, role Role) core.Node {
	switch role {
	case RoleStandard, RoleResearcher:
		children := []core.Node{
			core.Leaf(core.FieldMalware, core.OpIs, 1),
			core.Leaf(core.FieldUploadSource, core.OpIsNot, core.UploadSourceManualAPI),
			core.Leaf(core.FieldTagGroup, core.OpIs, group),
			core.DateRange(day, day),
		}
		if role == RoleResearcher {
			children = append(children,
				core.Leaf(core.FieldDeviceAccount, core.OpDoesNotContain, "Palo"),
				core.Leaf(core.FieldDeviceAccount, core.OpDoesNotContain, "palo"),
			)
		}
		return core.All(append(children, core.Leaf(core.FieldTag, core.OpNotInList, excludedTags))...)
	}
	return core.All(
		core.Leaf(core.FieldTagGroup, core.OpIs, group),
		core.DateRange(day, day),
	)
}

// MonthlyMalware writes one CSV row per month with total and no-API malware counts
func (j *Jobs) MonthlyMalware(ctx context.Context) (*Report, error) {
	start := j.now()
	months, err := j.months()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(j.config.OutCSV, MonthlyMalwareFile)
	w, err := sink.CreateCSV(path, MonthlyMalwareHeader)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	report := &Report{Path: path}
	for _, m := range months {
		row := []string{m.Label()}
		for _, excludeAPI := range []bool{false, true} {
			label := m.Label() + " malware"
			if excludeAPI {
				label += " excluding API"
			}
			n, err := j.count(ctx, label, MonthlyMalwareQuery(m, excludeAPI))
			if err != nil {
				return report, err
			}
			row = append(row, strconv.Itoa(n), strconv.Itoa(DailyAverage(n, m.Days())))
		}
		if err := w.Write(row); err != nil {
			return report, err
		}
		report.Rows++
	}
	report.Elapsed = j.now().Sub(start)
	return report, w.Close()
}

type sourceDoc struct {
	Date                   string `json:"date"`
	UploadSource           string `json:"upload_source"`
	MalwareMonthlyCount    int    `json:"malware_monthly_count"`
	MalwareDailyAverage    int    `json:"malware_daily_average"`
	AllVerdictMonthlyCount int    `json:"all_verdict_monthly_count"`
	AllVerdictDailyAverage int    `json:"all_verdict_daily_average"`
}

// UploadSource writes per-month, per-source malware and all-verdict counts as bulk-load pairs
func (j *Jobs) UploadSource(ctx context.Context, sources []string) (*Report, error) {
	start := j.now()
	if len(sources) == 0 {
		sources = DefaultUploadSources
	}
	months, err := j.months()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(j.config.OutJSON, UploadSourceFile)
	f, err := sink.OpenBulkFile(path, SourceIndex, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report := &Report{Path: path}
	for _, m := range months {
		for _, source := range sources {
			label := m.Label() + " " + source
			mal, err := j.count(ctx, label+" malware", UploadSourceQuery(m, source, true))
			if err != nil {
				return report, err
			}
			all, err := j.count(ctx, label+" all verdicts", UploadSourceQuery(m, source, false))
			if err != nil {
				return report, err
			}
			doc := sourceDoc{
				Date:                   m.Label(),
				UploadSource:           source,
				MalwareMonthlyCount:    mal,
				MalwareDailyAverage:    DailyAverage(mal, m.Days()),
				AllVerdictMonthlyCount: all,
				AllVerdictDailyAverage: DailyAverage(all, m.Days()),
			}
			if err := f.Write(doc); err != nil {
				return report, err
			}
			report.Rows++
		}
	}
	report.Elapsed = j.now().Sub(start)
	return report, f.Close()
}

type tagGroupDoc struct {
	Date                string `json:"date"`
	TagGroup            string `json:"tag_group"`
	MalwareMonthlyCount int    `json:"malware_monthly_count"`
	MalwareDailyAverage int    `json:"malware_daily_average"`
}

// TagGroupMonthly writes per-month, per-group malware counts as bulk-load pairs
func (j *Jobs) TagGroupMonthly(ctx context.Context, groups []string) (*Report, error) {
	start := j.now()
	if len(groups) == 0 {
		groups = DefaultTagGroups
	}
	months, err := j.months()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(j.config.OutJSON, TagGroupFile)
	f, err := sink.OpenBulkFile(path, TagGroupIndex, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report := &Report{Path: path}
	for _, m := range months {
		for _, group := range groups {
			n, err := j.count(ctx, m.Label()+" "+group, TagGroupQuery(m, group))
			if err != nil {
				return report, err
			}
			doc := tagGroupDoc{
				Date:                m.Label(),
				TagGroup:            group,
				MalwareMonthlyCount: n,
				MalwareDailyAverage: DailyAverage(n, m.Days()),
			}
			if err := f.Write(doc); err != nil {
				return report, err
			}
			report.Rows++
		}
	}
	report.Elapsed = j.now().Sub(start)
	return report, f.Close()
}

type tagGroupDailyDoc struct {
	Date      string `json:"date"`
	GroupName string `json:"metrics.threat.tag.group.name"`
	Count     int    `json:"metrics.threat.tag.group.count"`
}

// DailyIndex is the monthly rolling index a daily count is loaded into
func DailyIndex(day time.Time) string {
	return "tag_group_stats_daily-" + day.Format("2006-01")
}

// DailyFile is the bulk-load file name for a daily run over [start, end]
func DailyFile(start, end time.Time) string {
	return fmt.Sprintf("tag_group_daily_summary_%s_%s.json", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// TagGroupDaily counts every group on every IntervalDays-th day between Start and End
func (j *Jobs) TagGroupDaily(ctx context.Context, groups []string) (*Report, error) {
	start := j.now()
	if len(groups) == 0 {
		return nil, errors.New("daily tag group stats need at least one tag group")
	}
	if j.config.Start.IsZero() || j.config.End.IsZero() {
		return nil, errors.New("daily tag group stats need a start and end date")
	}
	if j.config.End.Before(j.config.Start) {
		return nil, fmt.Errorf("stats end %s is before start %s",
			j.config.End.Format("2006-01-02"), j.config.Start.Format("2006-01-02"))
	}

	path := filepath.Join(j.config.OutJSON, DailyFile(j.config.Start, j.config.End))
	f, err := sink.OpenBulkFile(path, TagGroupIndex, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report := &Report{Path: path}
	for _, day := range Days(j.config.Start, j.config.End, j.config.IntervalDays) {
		index := DailyIndex(day)
		date := day.Format("2006-01-02")
		for _, group := range groups {
			n, err := j.count(ctx, date+" "+group, TagGroupDailyQuery(day, group, j.config.Role))
			if err != nil {
				return report, err
			}
			if err := f.WriteIndexed(index, tagGroupDailyDoc{Date: date, GroupName: group, Count: n}); err != nil {
				return report, err
			}
			report.Rows++
		}
	}
	report.Elapsed = j.now().Sub(start)
	return report, f.Close()
}
