// Package corpus loads training text from disk.
package corpus

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrNoSamples = errors.New("corpus: no usable samples")

// LoadCSV reads one column of a headered CSV file and returns its
// non-empty cells in file order.
func LoadCSV(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("csv column %q not found in header %v", column, header)
	}

	var texts []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if text := strings.TrimSpace(rec[col]); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, ErrNoSamples
	}
	return texts, nil
}

// LoadLines reads a plain text file, one sample per non-empty line.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var texts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if text := strings.TrimSpace(sc.Text()); text != "" {
			texts = append(texts, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if len(texts) == 0 {
		return nil, ErrNoSamples
	}
	return texts, nil
}

// Load picks a loader from the file extension: .csv goes through
// LoadCSV with the given column, anything else is read line by line.
func Load(path, column string) ([]string, error) {
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return LoadCSV(path, column)
	}
	return LoadLines(path)
}
