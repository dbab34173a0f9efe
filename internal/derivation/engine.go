// Package derivation recomputes the derived tables from the raw ones.
//
// An Engine holds named steps in registration order and runs a selection
// of them one after another in the calling goroutine. Steps that convert
// currencies share a single set of exchange rates fetched at the start of
// the run; when the rates cannot be fetched nothing is derived at all.
package derivation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
)

// Step names.
const (
	StepDividendYields    = "dividend_yields"
	StepFundamentalRatios = "fundamental_ratios"
	StepCovidDaily        = "covid_daily"
	StepTechnical         = "technical"
	StepPortfolio         = "portfolio"
	StepSimulator         = "simulator"
)

// ErrUnknownStep is returned when a run names a step that is not registered.
var ErrUnknownStep = errors.New("unknown derivation step")

// RateSource provides the exchange rates of a run.
type RateSource interface {
	Rates(ctx context.Context) (domain.FxRates, error)
}

// Observer is told about every finished step, normally the metrics recorder.
type Observer interface {
	DerivationFinished(step string, elapsed time.Duration, rows int, err error)
}

// Step is one derivation.
type Step struct {
	Name string
	// NeedsRates makes the engine fetch exchange rates before the run.
	NeedsRates bool
	Run        func(ctx context.Context, rates domain.FxRates) (int, error)
}

// Plain adapts a derivation that does not convert currencies.
func Plain(name string, run func(ctx context.Context) (int, error)) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, _ domain.FxRates) (int, error) {
			return run(ctx)
		},
	}
}

// Converting adapts a derivation that needs exchange rates.
func Converting(name string, run func(ctx context.Context, rates domain.FxRates) (int, error)) Step {
	return Step{Name: name, NeedsRates: true, Run: run}
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name    string
	Rows    int
	Elapsed time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver reports each step to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine runs derivation steps serially.
type Engine struct {
	rates    RateSource
	steps    []Step
	index    map[string]int
	observer Observer
	log      zerolog.Logger
}

// New creates an engine.
func New(rates RateSource, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		rates: rates,
		index: make(map[string]int),
		log:   log.With().Str("component", "derivation").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds steps. A step registered twice replaces the earlier one
// in its original position.
func (e *Engine) Register(steps ...Step) {
	for _, s := range steps {
		if i, ok := e.index[s.Name]; ok {
			e.steps[i] = s
			continue
		}
		e.index[s.Name] = len(e.steps)
		e.steps = append(e.steps, s)
	}
}

// Names lists the registered steps in run order.
func (e *Engine) Names() []string {
	out := make([]string, len(e.steps))
	for i, s := range e.steps {
		out[i] = s.Name
	}
	return out
}

// Run executes the named steps, or every step when names is empty, in
// registration order. It stops at the first failing step.
func (e *Engine) Run(ctx context.Context, names ...string) ([]StepResult, error) {
	selected, err := e.selectSteps(names)
	if err != nil {
		return nil, err
	}

	var rates domain.FxRates
	for _, s := range selected {
		if s.NeedsRates {
			rates, err = e.rates.Rates(ctx)
			if err != nil {
				e.log.Error().Err(err).Msg("Exchange rates unavailable, nothing derived")
				return nil, fmt.Errorf("failed to start derivation run: %w", err)
			}
			break
		}
	}

	results := make([]StepResult, 0, len(selected))
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		start := time.Now()
		rows, err := s.Run(ctx, rates)
		elapsed := time.Since(start)
		if e.observer != nil {
			e.observer.DerivationFinished(s.Name, elapsed, rows, err)
		}
		if err != nil {
			e.log.Error().Err(err).Str("step", s.Name).Dur("elapsed", elapsed).Msg("Derivation failed")
			return results, fmt.Errorf("derivation %s failed: %w", s.Name, err)
		}
		e.log.Info().Str("step", s.Name).Int("rows", rows).Dur("elapsed", elapsed).Msg("Derivation finished")
		results = append(results, StepResult{Name: s.Name, Rows: rows, Elapsed: elapsed})
	}
	return results, nil
}

func (e *Engine) selectSteps(names []string) ([]Step, error) {
	if len(names) == 0 {
		return e.steps, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := e.index[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStep, n)
		}
		want[n] = true
	}
	var out []Step
	for _, s := range e.steps {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}
