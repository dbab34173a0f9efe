// Package exchangerate provides the TTD exchange rates used by derivations.
package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
)

// Base is the currency every rate is quoted against.
const Base = domain.CurrencyTTD

// ErrRatesUnavailable means live rates could not be obtained. Derivations
// that need conversion must not run.
var ErrRatesUnavailable = errors.New("cannot derive: exchange rates unavailable")

const cacheKey = "rates"

// Service fetches TTD→{USD, JMD, BBD} from exchangerate-api.com and keeps
// the tuple in memory for the lifetime of a derivation run. Expired rates
// are never served.
type Service struct {
	baseURL  string
	client   *http.Client
	cache    *cache.Cache
	maxTries uint
	wait     time.Duration
	log      zerolog.Logger
}

// NewService creates a currency service. ttl bounds how long a fetched
// tuple is reused.
func NewService(baseURL string, client *http.Client, ttl time.Duration, log zerolog.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		cache:    cache.New(ttl, 2*ttl),
		maxTries: 3,
		wait:     time.Second,
		log:      log.With().Str("client", "exchangerate-api").Logger(),
	}
}

// Rates returns the cached tuple or fetches a fresh one.
func (s *Service) Rates(ctx context.Context) (domain.FxRates, error) {
	if v, ok := s.cache.Get(cacheKey); ok {
		return v.(domain.FxRates), nil
	}

	rates, err := backoff.Retry(ctx, func() (domain.FxRates, error) {
		return s.fetch(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.wait)),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn().Err(err).Dur("retry_in", next).Msg("Exchange rate fetch failed")
		}),
	)
	if err != nil {
		return domain.FxRates{}, fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
	}

	s.cache.SetDefault(cacheKey, rates)
	s.log.Info().
		Float64("usd", rates.USD).
		Float64("jmd", rates.JMD).
		Float64("bbd", rates.BBD).
		Msg("Fetched exchange rates")
	return rates, nil
}

// Invalidate drops the cached tuple so the next call fetches again.
func (s *Service) Invalidate() {
	s.cache.Delete(cacheKey)
}

func (s *Service) fetch(ctx context.Context) (domain.FxRates, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, Base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.FxRates{}, backoff.Permanent(err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.FxRates{}, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.FxRates{}, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.FxRates{}, backoff.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	if result.Base != "" && result.Base != string(Base) {
		return domain.FxRates{}, backoff.Permanent(fmt.Errorf("API answered base %s, want %s", result.Base, Base))
	}

	rates := domain.FxRates{FetchedAt: time.Now().UTC()}
	for _, c := range []struct {
		code domain.Currency
		dst  *float64
	}{
		{domain.CurrencyUSD, &rates.USD},
		{domain.CurrencyJMD, &rates.JMD},
		{domain.CurrencyBBD, &rates.BBD},
	} {
		rate, ok := result.Rates[string(c.code)]
		if !ok || rate <= 0 {
			return domain.FxRates{}, backoff.Permanent(fmt.Errorf("rate not found for %s->%s", Base, c.code))
		}
		*c.dst = rate
	}
	return rates, nil
}
