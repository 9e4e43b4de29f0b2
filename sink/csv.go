package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"afdata/util"
)

// CSVWriter writes a statistics table
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

// CreateCSV truncates path and writes header
func CreateCSV(path string, header []string) (*CSVWriter, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	c := &CSVWriter{f: f, w: csv.NewWriter(f)}
	if err := c.Write(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// Write appends one row and flushes it, so a long job leaves a readable partial table
func (c *CSVWriter) Write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close closes the file
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}
