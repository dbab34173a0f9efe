package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// UserAgents hands out user-agent strings round-robin.
type UserAgents struct {
	agents []string
	next   atomic.Uint64
}

// NewUserAgents creates a rotation. An empty list yields a generic agent.
func NewUserAgents(agents []string) *UserAgents {
	if len(agents) == 0 {
		agents = []string{"Mozilla/5.0 (compatible; trinistocks-pipeline)"}
	}
	return &UserAgents{agents: agents}
}

// Next returns the following agent.
func (u *UserAgents) Next() string {
	i := u.next.Add(1) - 1
	return u.agents[i%uint64(len(u.agents))]
}

// ProxyPool hands out proxies round-robin. An empty pool means direct
// connections.
type ProxyPool struct {
	mu      sync.Mutex
	proxies []*url.URL
	next    int
}

// NewProxyPool parses host:port or URL entries, skipping malformed ones.
func NewProxyPool(entries []string) *ProxyPool {
	p := &ProxyPool{}
	p.set(parseProxies(entries))
	return p
}

// Next returns the following proxy, or nil when the pool is empty.
func (p *ProxyPool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return nil
	}
	u := p.proxies[p.next%len(p.proxies)]
	p.next++
	return u
}

// Len returns the pool size.
func (p *ProxyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

func (p *ProxyPool) set(proxies []*url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = proxies
	p.next = 0
}

// Refresh replaces the pool with the list published at listURL, one
// host:port per line. On failure the pool keeps its previous entries.
func (p *ProxyPool) Refresh(ctx context.Context, client *http.Client, listURL string, log zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build proxy list request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch proxy list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: listURL, Status: resp.StatusCode}
	}

	entries, err := readLines(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read proxy list: %w", err)
	}
	proxies := parseProxies(entries)
	if len(proxies) == 0 {
		return fmt.Errorf("proxy list at %s is empty", listURL)
	}
	p.set(proxies)
	log.Info().Int("proxies", len(proxies)).Msg("Refreshed proxy pool")
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func parseProxies(entries []string) []*url.URL {
	var out []*url.URL
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || strings.HasPrefix(e, "#") {
			continue
		}
		if !strings.Contains(e, "://") {
			e = "http://" + e
		}
		u, err := url.Parse(e)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
