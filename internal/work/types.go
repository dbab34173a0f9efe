package work

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/utils"
)

// Worker flags understood by the scraper binary.
const (
	FlagWorkerDates = "--worker_dates"
	FlagReportFile  = "--report_file"
	FlagRunID       = "--run_id"
)

// NewRunID returns a fresh identifier shared by an orchestrator run and
// its workers.
func NewRunID() string {
	return uuid.NewString()
}

// FormatDates joins dates into the --worker_dates argument.
func FormatDates(dates []domain.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// ParseDates reads a --worker_dates argument.
func ParseDates(s string) ([]domain.Date, error) {
	var out []domain.Date
	for _, part := range utils.ParseCSV(s) {
		d, err := domain.ParseDate(part)
		if err != nil {
			return nil, fmt.Errorf("invalid worker date %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}
