package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gammadia/kubeagents/label"
)

// anyLabel stands, on the command line, for demand without label constraint.
const anyLabel = "*"

// parseDemand parses "label=count" entries, splitting on the last '='. Later
// entries for the same label override earlier ones.
func parseDemand(entries []string) (map[string]int, error) {
	demand := map[string]int{}

	for _, entry := range entries {
		i := strings.LastIndex(entry, "=")
		if i < 0 {
			return nil, fmt.Errorf("invalid demand '%s': expected label=count", entry)
		}
		raw, rawCount := entry[:i], entry[i+1:]

		count, err := strconv.Atoi(strings.TrimSpace(rawCount))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("invalid demand '%s': count must be a non-negative integer", entry)
		}

		l, err := normalizeLabel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid demand '%s': %w", entry, err)
		}
		demand[l] = count
	}

	return demand, nil
}

// normalizeLabel validates a label expression coming from outside. The
// scheduler keys demand by the raw expression, so it is only trimmed.
func normalizeLabel(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == anyLabel || raw == "" {
		return "", nil
	}
	if _, err := label.Parse(raw); err != nil {
		return "", err
	}
	return raw, nil
}
