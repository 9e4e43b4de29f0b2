package sink

import (
	"fmt"
	"path/filepath"

	"afdata/core"
)

// Pass distinguishes the primary search output from the signature coverage output
type Pass string

const (
	PassNoSigs Pass = "nosigs"
	PassSigs   Pass = "sigs"
)

// Layout locates the output artifacts of a run
type Layout struct {
	BulkDir   string
	PrettyDir string
}

func prefix(kind core.RunKind) string {
	if kind == core.KindSessions {
		return "session"
	}
	return "hash"
}

// BulkPath is the bulk-load stream of a run
func (l Layout) BulkPath(kind core.RunKind, tag string, pass Pass) string {
	return filepath.Join(l.BulkDir, fmt.Sprintf("%s_data_estack_%s_%s.json", prefix(kind), tag, pass))
}

// PrettyPath is the pretty snapshot of a run
func (l Layout) PrettyPath(kind core.RunKind, tag string, pass Pass) string {
	return filepath.Join(l.PrettyDir, fmt.Sprintf("%s_data_pretty_%s_%s.json", prefix(kind), tag, pass))
}

// BulkCommand renders the curl line that loads a bulk file into Elasticsearch
func BulkCommand(elastic, path string) string {
	return fmt.Sprintf(`curl -s -XPOST 'http://%s/_bulk' --data-binary @%s -H "Content-Type: application/x-ndjson" -u user:password`,
		elastic, filepath.ToSlash(path))
}
