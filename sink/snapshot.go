package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"afdata/core"
	"afdata/util"
)

func rootKey(kind core.RunKind) string {
	if kind == core.KindSessions {
		return "sessions"
	}
	return "samples"
}

// WriteSnapshot atomically replaces the pretty snapshot at path with records
func WriteSnapshot(path string, kind core.RunKind, records []*core.EnrichedRecord) error {
	if records == nil {
		records = []*core.EnrichedRecord{}
	}
	data, err := json.MarshalIndent(map[string]any{rootKey(kind): records}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return util.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// LoadSnapshot reads the records of a pretty snapshot
func LoadSnapshot(path string, kind core.RunKind) ([]*core.EnrichedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot %s", core.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var doc map[string][]*core.EnrichedRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	records, ok := doc[rootKey(kind)]
	if !ok {
		return nil, fmt.Errorf("snapshot %s has no %q list", path, rootKey(kind))
	}
	return records, nil
}
