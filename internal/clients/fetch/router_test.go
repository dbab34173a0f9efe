package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedFetcher struct {
	name string
	got  []Request
}

func (f *namedFetcher) Fetch(_ context.Context, req Request) (*Response, error) {
	f.got = append(f.got, req)
	return &Response{URL: req.URL, Body: []byte(f.name)}, nil
}

func TestRouter_DownloadsBypassBrowser(t *testing.T) {
	browser := &namedFetcher{name: "browser"}
	static := &namedFetcher{name: "static"}
	r := NewRouter(browser, static, "raw.example.com", " ")

	cases := []struct {
		req  Request
		want string
	}{
		{Request{URL: "https://exchange.example/summary", Kind: KindHTML}, "browser"},
		{Request{URL: "https://exchange.example/listing"}, "browser"},
		{Request{URL: "https://exchange.example/report.pdf", Kind: KindPDF}, "static"},
		{Request{URL: "https://data.example/05-05-2020.json", Kind: KindJSON}, "static"},
		{Request{URL: "https://RAW.example.com/page", Kind: KindHTML}, "static"},
	}
	for _, tc := range cases {
		resp, err := r.Fetch(context.Background(), tc.req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(resp.Body), tc.req.URL)
	}
	assert.Len(t, browser.got, 2)
	assert.Len(t, static.got, 3)
}
