package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"afdata/util"
)

type indexAction struct {
	Index indexTarget `json:"index"`
}

type indexTarget struct {
	Index string `json:"_index"`
	Type  string `json:"_type"`
}

// BulkWriter writes documents as Elasticsearch bulk-load pairs: an index directive line
// followed by the document line.
type BulkWriter struct {
	w     io.Writer
	index string
}

// NewBulkWriter creates a writer targeting index
func NewBulkWriter(w io.Writer, index string) *BulkWriter {
	return &BulkWriter{w: w, index: index}
}

// Write appends doc under the writer's index
func (b *BulkWriter) Write(doc any) error {
	return b.WriteIndexed(b.index, doc)
}

// WriteIndexed appends doc under index
func (b *BulkWriter) WriteIndexed(index string, doc any) error {
	action, err := json.Marshal(indexAction{Index: indexTarget{Index: index, Type: index}})
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode bulk document: %w", err)
	}
	line := make([]byte, 0, len(action)+len(body)+2)
	line = append(line, action...)
	line = append(line, '\n')
	line = append(line, body...)
	line = append(line, '\n')
	if _, err := b.w.Write(line); err != nil {
		return fmt.Errorf("failed to write bulk document: %w", err)
	}
	return nil
}

// BulkFile is a bulk-load stream on disk
type BulkFile struct {
	*BulkWriter
	f   *os.File
	buf *bufio.Writer
}

// OpenBulkFile opens path for writing, truncating it when truncate is set and appending
// otherwise.
func OpenBulkFile(path, index string, truncate bool) (*BulkFile, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open bulk file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &BulkFile{BulkWriter: NewBulkWriter(buf, index), f: f, buf: buf}, nil
}

// Close flushes and closes the file
func (b *BulkFile) Close() error {
	if err := b.buf.Flush(); err != nil {
		_ = b.f.Close()
		return fmt.Errorf("failed to flush bulk file: %w", err)
	}
	return b.f.Close()
}
