// Package fetch retrieves upstream pages and files for the source adapters.
//
// Two fetchers share one contract. Client performs plain HTTP requests and
// serves static HTML, PDF and JSON sources. Renderer drives a headless
// browser for pages that only materialise after JavaScript runs. Both
// rotate the user agent on every attempt, optionally route through a proxy
// drawn round-robin from a pool, and reject responses that are empty or
// look like a CDN challenge page.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/trinistocks/pipeline/internal/refdata"
)

// Kind is the artifact type a request expects.
type Kind string

const (
	KindHTML Kind = "html"
	KindPDF  Kind = "pdf"
	KindJSON Kind = "json"
)

var (
	// ErrBotWall means the upstream served a challenge page.
	ErrBotWall = errors.New("bot wall page")
	// ErrEmptyBody means the upstream answered with nothing.
	ErrEmptyBody = errors.New("empty response body")
	// ErrNotFound means the resource does not exist; never retried.
	ErrNotFound = errors.New("resource not found")
)

// Request describes one fetch.
type Request struct {
	URL  string
	Kind Kind
	// WaitFor is a CSS selector the renderer waits for before reading the
	// page. Ignored by the HTTP client.
	WaitFor string
}

// Response is a validated fetch result.
type Response struct {
	URL       string
	Status    int
	Body      []byte
	UserAgent string
	Proxy     string
	Attempts  int
}

// Document parses the body as HTML.
func (r *Response) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.URL, err)
	}
	return doc, nil
}

// Fetcher is implemented by Client and Renderer.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Validator inspects a response before it is accepted. A validation
// error causes a retry with a fresh user agent and proxy.
type Validator func(req Request, resp *Response) error

// DefaultValidator rejects empty bodies, and HTML bodies containing one of
// the bot-wall markers.
func DefaultValidator(ref *refdata.Data) Validator {
	return func(req Request, resp *Response) error {
		if len(bytes.TrimSpace(resp.Body)) == 0 {
			return ErrEmptyBody
		}
		if req.Kind == KindHTML || req.Kind == "" {
			if ref.IsBotWall(string(resp.Body)) {
				return ErrBotWall
			}
		}
		return nil
	}
}

// Observer receives one call per attempt, normally the metrics recorder.
type Observer interface {
	FetchAttempt(host string, outcome string)
}

// Outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeBotWall   = "bot_wall"
	OutcomeNotFound  = "not_found"
	OutcomeTransport = "transport_error"
	OutcomeStatus    = "bad_status"
	OutcomeOpen      = "circuit_open"
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrBotWall), errors.Is(err, ErrEmptyBody):
		return OutcomeBotWall
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	}
	var se *StatusError
	if errors.As(err, &se) {
		return OutcomeStatus
	}
	return OutcomeTransport
}

// StatusError is an unexpected HTTP status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// GetDocument fetches req and parses the body as HTML.
func GetDocument(ctx context.Context, f Fetcher, req Request) (*goquery.Document, *Response, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, nil, err
	}
	return doc, resp, nil
}
