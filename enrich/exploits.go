package enrich

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"afdata/core"
)

// ExploitUnknown fills exploit fields for CVEs without a matching signature
const ExploitUnknown = "Unknown"

var exploitColumns = []string{"Threat Name", "Category", "Severity", "CVE"}

// ExploitTable maps CVE identifiers to firewall exploit signatures
type ExploitTable struct {
	byCVE map[string]core.ExploitInfo
}

// ParseExploits reads an exploit signature export. Rows without a CVE are skipped and
// cells listing several CVEs produce one entry per CVE.
func ParseExploits(r io.Reader) (*ExploitTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read exploit header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range exploitColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("exploit file is missing column %q", name)
		}
	}

	cell := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	t := &ExploitTable{byCVE: make(map[string]core.ExploitInfo)}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read exploit file: %w", err)
		}
		cves := cell(row, "CVE")
		if cves == "" {
			continue
		}
		for _, cve := range strings.Split(cves, ",") {
			cve = strings.TrimSpace(cve)
			if cve == "" {
				continue
			}
			t.byCVE[cve] = core.ExploitInfo{
				CVE:        cve,
				ThreatName: cell(row, "Threat Name"),
				Category:   cell(row, "Category"),
				Severity:   cell(row, "Severity"),
			}
		}
	}
	return t, nil
}

// LoadExploits reads the exploit signature file at path
func LoadExploits(path string) (*ExploitTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: exploit file %s", core.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to open exploit file: %w", err)
	}
	defer f.Close()
	return ParseExploits(f)
}

// Lookup returns the signature for cve, with Unknown fields when there is none
func (t *ExploitTable) Lookup(cve string) core.ExploitInfo {
	if t != nil {
		if info, ok := t.byCVE[cve]; ok {
			return info
		}
	}
	return core.ExploitInfo{CVE: cve, ThreatName: ExploitUnknown, Category: ExploitUnknown, Severity: ExploitUnknown}
}

// Len returns the number of CVEs in the table
func (t *ExploitTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byCVE)
}

// cveFromTag extracts the CVE from a tag such as Unit42.CVE-2017-0199
func cveFromTag(tag string) (string, bool) {
	if !strings.Contains(tag, "CVE") {
		return "", false
	}
	parts := strings.Split(tag, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
