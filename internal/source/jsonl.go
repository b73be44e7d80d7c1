package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"catalog/repricer/internal/domain"
)

// maxLineSize bounds a single JSON-lines record.
const maxLineSize = 4 << 20

// ReadJSONLines reads one JSON object per line. Blank lines are skipped.
// Headers are collected in order of first appearance; keys new to a line are
// appended sorted.
func ReadJSONLines(r io.Reader) (*domain.Sheet, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	sheet := &domain.Sheet{Headers: make([]string, 0), Rows: make([]domain.Row, 0)}
	known := make(map[string]bool)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var row domain.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", line, err)
		}
		if row == nil {
			return nil, fmt.Errorf("line %d is not an object", line)
		}

		added := make([]string, 0)
		for key := range row {
			if !known[key] {
				known[key] = true
				added = append(added, key)
			}
		}
		sort.Strings(added)
		sheet.Headers = append(sheet.Headers, added...)
		sheet.Rows = append(sheet.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSON lines: %w", err)
	}

	return sheet, nil
}
