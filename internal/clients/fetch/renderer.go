package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// Renderer fetches pages through a headless Chromium. Each attempt runs in
// a fresh browser context with its own user agent and proxy, so a retry
// after a challenge page looks like a new visitor.
//
// Transport failures are capped at Options.Attempts. Challenge pages are
// transient and retried until ctx is done.
//
// Only pages are rendered; wrap it in a Router so downloads go over HTTP.
type Renderer struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	render  func(Request) (*Response, error)
	log     zerolog.Logger
}

// NewRenderer starts the playwright driver and launches the browser.
func NewRenderer(opts Options, log zerolog.Logger) (*Renderer, error) {
	opts.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	r := &Renderer{
		opts:    opts,
		pw:      pw,
		browser: browser,
		log:     log.With().Str("client", "renderer").Logger(),
	}
	r.render = r.renderPage
	return r, nil
}

// Fetch renders req.URL and returns the resulting HTML.
func (r *Renderer) Fetch(ctx context.Context, req Request) (*Response, error) {
	if req.Kind != KindHTML && req.Kind != "" {
		return nil, fmt.Errorf("renderer cannot download %s content from %s", req.Kind, req.URL)
	}
	transportFailures := 0
	wait := r.opts.RetryWait

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("render %s abandoned after %d attempts: %w", req.URL, attempt-1, err)
		}

		resp, err := r.render(req)
		if err == nil {
			err = r.opts.Validator(req, resp)
		}
		if r.opts.Observer != nil {
			r.opts.Observer.FetchAttempt(hostOf(req.URL), outcomeOf(err))
		}
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}

		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case errors.Is(err, ErrBotWall), errors.Is(err, ErrEmptyBody):
			r.log.Warn().Str("url", req.URL).Int("attempt", attempt).Msg("Challenge page, retrying with a new identity")
		default:
			transportFailures++
			if transportFailures >= r.opts.Attempts {
				return nil, fmt.Errorf("render %s failed after %d attempts: %w", req.URL, attempt, err)
			}
			r.log.Debug().Err(err).Str("url", req.URL).Int("attempt", attempt).Msg("Render attempt failed")
		}

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		if wait < 10*r.opts.RetryWait {
			wait *= 2
		}
	}
}

func (r *Renderer) renderPage(req Request) (*Response, error) {
	ua := r.opts.UserAgents.Next()
	ctxOpts := playwright.BrowserNewContextOptions{UserAgent: playwright.String(ua)}
	proxy := r.opts.Proxies.Next()
	if proxy != nil {
		ctxOpts.Proxy = &playwright.Proxy{Server: proxy.String()}
	}

	bctx, err := r.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	timeoutMs := float64(r.opts.Timeout / time.Millisecond)
	page.SetDefaultTimeout(timeoutMs)

	gotoResp, err := page.Goto(req.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMs),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", req.URL, err)
	}
	status := 0
	if gotoResp != nil {
		status = gotoResp.Status()
		if status == 404 {
			return nil, fmt.Errorf("%s: %w", req.URL, ErrNotFound)
		}
	}

	if req.WaitFor != "" {
		if err := page.Locator(req.WaitFor).First().WaitFor(); err != nil {
			return nil, fmt.Errorf("%s never showed %q: %w", req.URL, req.WaitFor, err)
		}
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read content of %s: %w", req.URL, err)
	}

	out := &Response{URL: req.URL, Status: status, Body: []byte(html), UserAgent: ua}
	if proxy != nil {
		out.Proxy = proxy.Host
	}
	return out, nil
}

// Close shuts the browser and the playwright driver down.
func (r *Renderer) Close() error {
	var errs []error
	if err := r.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
