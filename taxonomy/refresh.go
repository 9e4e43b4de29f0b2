package taxonomy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"afdata/autofocus"
	"afdata/core"
	"afdata/util"

	"go.uber.org/zap"
)

// PageSize is the largest page the tags endpoint returns
const PageSize = 200

// TagSource fetches pages of the tag catalogue
type TagSource interface {
	TagPage(ctx context.Context, pageNum, pageSize int) (*autofocus.TagPage, error)
}

// Paths are the files written by a refresh
type Paths struct {
	TagData   string
	GroupList string
	NoGroup   string
}

// DefaultPaths returns the standard file names under dataDir
func DefaultPaths(dataDir string) Paths {
	return Paths{
		TagData:   filepath.Join(dataDir, "tagdata.json"),
		GroupList: filepath.Join(dataDir, "groupList.txt"),
		NoGroup:   filepath.Join(dataDir, "noGroupTags.txt"),
	}
}

// RefreshResult summarizes a completed refresh
type RefreshResult struct {
	Tags    int
	Pages   int
	Groups  []string
	NoGroup []string
}

// Refresher rebuilds the local tag cache
type Refresher struct {
	source TagSource
	paths  Paths
	logger *zap.SugaredLogger
	onPage func(page, pages int)
}

// NewRefresher creates a refresher
func NewRefresher(source TagSource, paths Paths, logger *zap.SugaredLogger) *Refresher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Refresher{source: source, paths: paths, logger: logger}
}

// OnPage registers a callback invoked after each page is fetched
func (r *Refresher) OnPage(fn func(page, pages int)) {
	r.onPage = fn
}

// Refresh reads the total tag count, fetches every page and rewrites the cache files.
// Nothing is written unless every page was fetched.
func (r *Refresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	first, err := r.source.TagPage(ctx, 1, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	pages := (first.TotalCount + PageSize - 1) / PageSize
	r.logger.Infow("Refreshing tag data", "total", first.TotalCount, "pages", pages)

	tags := make(map[string]json.RawMessage, first.TotalCount)
	res := &RefreshResult{}
	seenGroup := make(map[string]struct{})

	for page := 0; page <= pages; page++ {
		resp, err := r.source.TagPage(ctx, page, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tag page %d: %w", page, err)
		}
		res.Pages++
		if r.onPage != nil {
			r.onPage(page, pages)
		}
		if len(resp.Tags) == 0 {
			break
		}

		for _, raw := range resp.Tags {
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, fmt.Errorf("failed to parse tag on page %d: %w", page, err)
			}
			if e.PublicName == "" {
				r.logger.Warnw("Skipping tag without public name", "page", page)
				continue
			}
			if _, dup := tags[e.PublicName]; !dup && len(e.Groups) == 0 {
				res.NoGroup = append(res.NoGroup, e.PublicName)
			}
			tags[e.PublicName] = raw
			for _, g := range e.GroupNames() {
				if _, ok := seenGroup[g]; !ok {
					seenGroup[g] = struct{}{}
					res.Groups = append(res.Groups, g)
				}
			}
		}
	}
	res.Tags = len(tags)

	if err := r.write(tags, res); err != nil {
		return nil, err
	}
	r.logger.Infow("Tag data refresh complete", "tags", res.Tags, "groups", len(res.Groups), "ungrouped", len(res.NoGroup))
	return res, nil
}

func (r *Refresher) write(tags map[string]json.RawMessage, res *RefreshResult) error {
	data, err := json.MarshalIndent(map[string]any{"_tags": tags}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tag data: %w", err)
	}
	if err := util.WriteFileAtomic(r.paths.TagData, append(data, '\n'), 0o644); err != nil {
		return err
	}
	if err := util.WriteFileAtomic(r.paths.GroupList, lines(res.Groups), 0o644); err != nil {
		return err
	}
	return util.WriteFileAtomic(r.paths.NoGroup, lines(res.NoGroup), 0o644)
}

func lines(values []string) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// LoadGroupList reads the tag group names written by a refresh, in first-seen order
func LoadGroupList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: group list %s (run 'afdata tags refresh')", core.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to open group list: %w", err)
	}
	defer f.Close()

	var groups []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if g := strings.TrimSpace(scanner.Text()); g != "" {
			groups = append(groups, g)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read group list: %w", err)
	}
	return groups, nil
}
