package fetch

import (
	"context"
	"strings"
)

// Router sends page requests to the browser and everything a browser would
// not hand back verbatim (PDF and JSON downloads, hosts serving static
// content) to the plain HTTP client.
type Router struct {
	browser Fetcher
	static  Fetcher
	hosts   map[string]struct{}
}

// NewRouter routes HTML requests to browser unless their host is one of
// staticHosts.
func NewRouter(browser, static Fetcher, staticHosts ...string) *Router {
	hosts := make(map[string]struct{}, len(staticHosts))
	for _, h := range staticHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Router{browser: browser, static: static, hosts: hosts}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, req Request) (*Response, error) {
	return r.route(req).Fetch(ctx, req)
}

func (r *Router) route(req Request) Fetcher {
	switch req.Kind {
	case KindPDF, KindJSON:
		return r.static
	}
	if _, ok := r.hosts[strings.ToLower(hostOf(req.URL))]; ok {
		return r.static
	}
	return r.browser
}
