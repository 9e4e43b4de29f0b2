package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"afdata/core"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed query_schema.json
var querySchema []byte

// LoadQueryFile reads a search query exported from the AutoFocus web UI. JSON files are
// used as-is; .yaml and .yml files are converted to JSON first. The body is validated
// against the query schema before use.
func LoadQueryFile(path string) (core.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Query{}, fmt.Errorf("%w: query file %s", core.ErrMissingArtifact, path)
		}
		return core.Query{}, fmt.Errorf("failed to read query file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return core.Query{}, fmt.Errorf("%w: %v", core.ErrInvalidQuery, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return core.Query{}, fmt.Errorf("%w: %v", core.ErrInvalidQuery, err)
		}
	}
	return ParseQuery(data)
}

// ParseQuery validates a JSON query body
func ParseQuery(data []byte) (core.Query, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(querySchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return core.Query{}, fmt.Errorf("%w: %v", core.ErrInvalidQuery, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return core.Query{}, fmt.Errorf("%w: %s", core.ErrInvalidQuery, strings.Join(msgs, "; "))
	}
	return core.RawQuery(data)
}
