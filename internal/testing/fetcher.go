package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
)

// MockFetcher is a testify mock of fetch.Fetcher.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fetch.Response), args.Error(1)
}

// PageFetcher serves canned bodies by URL and records every request.
// Unknown URLs yield fetch.ErrNotFound.
type PageFetcher struct {
	mu       sync.Mutex
	Pages    map[string]string
	Requests []fetch.Request
}

// NewPageFetcher creates a fetcher over pages.
func NewPageFetcher(pages map[string]string) *PageFetcher {
	return &PageFetcher{Pages: pages}
}

func (f *PageFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	body, ok := f.Pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.URL, fetch.ErrNotFound)
	}
	return &fetch.Response{URL: req.URL, Status: 200, Body: []byte(body), Attempts: 1}, nil
}

// URLs returns the requested URLs in order.
func (f *PageFetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Requests))
	for i, r := range f.Requests {
		out[i] = r.URL
	}
	return out
}
