package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"climate-platform/internal/models"
)

// collectStationIDs merges a comma-separated list, a file with one ID per
// line and positional arguments, dropping blanks, '#' comments and
// duplicates while keeping first-seen order.
func collectStationIDs(list, file string, args []string) ([]string, error) {
	var raw []string

	if list != "" {
		raw = append(raw, strings.Split(list, ",")...)
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open stations file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if i := strings.IndexByte(line, '#'); i >= 0 {
				line = line[:i]
			}
			raw = append(raw, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read stations file: %w", err)
		}
	}

	raw = append(raw, args...)

	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if err := models.ValidateStationID(id); err != nil {
			return nil, err
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}
