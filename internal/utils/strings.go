// Package utils holds small helpers shared by configuration and the CLI.
package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty
// values, or nil when none remain.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
