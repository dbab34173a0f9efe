package covid

import (
	"context"
	"fmt"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// Repository reads stored report series.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CountrySeries returns the cumulative report rows of one country,
// ascending by date.
func (r *Repository) CountrySeries(ctx context.Context, country string) ([]domain.PahoRecord, error) {
	var rows []domain.PahoRecord
	err := r.db.Conn().SelectContext(ctx, &rows, `
		SELECT date, country, region, confirmed, probable, confirmed_deaths, probable_deaths,
		       recovered, percentage_increase_confirmed, transmission_type
		FROM covid19_paho_data
		WHERE country = ?
		ORDER BY date`, country)
	if err != nil {
		return nil, fmt.Errorf("failed to query report series of %s: %w", country, err)
	}
	return rows, nil
}

// WorldwideDates returns the days already loaded from the aggregator on
// or after from.
func (r *Repository) WorldwideDates(ctx context.Context, from domain.Date) (map[domain.Date]struct{}, error) {
	var dates []domain.Date
	err := r.db.Conn().SelectContext(ctx, &dates,
		`SELECT DISTINCT date FROM covid19_worldwide_data WHERE date >= ?`, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregator dates: %w", err)
	}
	out := make(map[domain.Date]struct{}, len(dates))
	for _, d := range dates {
		out[d] = struct{}{}
	}
	return out, nil
}
