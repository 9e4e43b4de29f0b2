package search

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"afdata/core"
)

// MaxChunkSize is the largest input list AutoFocus accepts in one search
const MaxChunkSize = 1000

// Chunk partitions values into consecutive chunks of at most size elements
func Chunk(values []string, size int) [][]string {
	if size <= 0 || size > MaxChunkSize {
		size = MaxChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// ReadInputs reads one search value per line, skipping blank lines
func ReadInputs(r io.Reader) ([]string, error) {
	var values []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		values = append(values, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input list: %w", err)
	}
	return values, nil
}

// ReadInputFile reads the input list at path
func ReadInputFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: input list %s", core.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to open input list: %w", err)
	}
	defer f.Close()
	return ReadInputs(f)
}
