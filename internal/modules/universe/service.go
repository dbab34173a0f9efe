package universe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/sink"
)

// Service refreshes listed_equities from the exchange.
type Service struct {
	scraper *Scraper
	sink    *sink.Sink
	log     zerolog.Logger
}

// NewService creates the listed-equities service.
func NewService(scraper *Scraper, s *sink.Sink, log zerolog.Logger) *Service {
	return &Service{
		scraper: scraper,
		sink:    s,
		log:     log.With().Str("service", "listed_equities").Logger(),
	}
}

// Run scrapes the listing and upserts it. It returns the rows written.
func (s *Service) Run(ctx context.Context) (int, error) {
	symbols, err := s.scraper.Scrape(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scrape listed equities: %w", err)
	}
	n, err := sink.Upsert(ctx, s.sink, symbols)
	if err != nil {
		return n, fmt.Errorf("failed to store listed equities: %w", err)
	}
	s.log.Info().Int("rows", n).Msg("Listed equities updated")
	return n, nil
}
