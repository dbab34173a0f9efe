// Package refdata holds the small, slowly changing lists the adapters and
// derivations depend on: index labels, dividend currencies, spelling fixes
// for listing names, and the marker strings used to classify fetched pages.
package refdata

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/trinistocks/pipeline/internal/domain"
)

//go:embed refdata.yaml
var embedded []byte

// Index pairs a market index with the label printed before its figures.
type Index struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

// Data is the decoded reference file.
type Data struct {
	Indices            []Index                      `yaml:"indices"`
	DividendCurrencies map[domain.Currency][]string `yaml:"dividend_currencies"`
	NameCorrections    map[string]string            `yaml:"name_corrections"`
	SymbolBlacklist    []string                     `yaml:"symbol_blacklist"`
	BotWallMarkers     []string                     `yaml:"bot_wall_markers"`
	NoDataMarkers      []string                     `yaml:"no_data_markers"`
	UserAgents         []string                     `yaml:"user_agents"`

	dividendCurrency map[string]domain.Currency
}

var (
	defaultOnce sync.Once
	defaultData *Data
)

// Default returns the embedded reference data. The file ships with the
// binary, so a decode failure is a build defect and panics.
func Default() *Data {
	defaultOnce.Do(func() {
		d, err := Parse(embedded)
		if err != nil {
			panic(fmt.Sprintf("refdata: embedded file is invalid: %v", err))
		}
		defaultData = d
	})
	return defaultData
}

// Parse decodes a reference file.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode reference data: %w", err)
	}
	if len(d.Indices) == 0 {
		return nil, fmt.Errorf("reference data lists no indices")
	}
	if len(d.UserAgents) == 0 {
		return nil, fmt.Errorf("reference data lists no user agents")
	}
	d.dividendCurrency = make(map[string]domain.Currency)
	for currency, symbols := range d.DividendCurrencies {
		for _, s := range symbols {
			d.dividendCurrency[s] = currency
		}
	}
	return &d, nil
}

// IndexNames returns the closed set of index names in page order.
func (d *Data) IndexNames() []string {
	names := make([]string, len(d.Indices))
	for i, idx := range d.Indices {
		names[i] = idx.Name
	}
	return names
}

// DividendCurrency returns the currency a symbol declares dividends in.
func (d *Data) DividendCurrency(symbol string) domain.Currency {
	if c, ok := d.dividendCurrency[symbol]; ok {
		return c
	}
	return domain.CurrencyTTD
}

// CanonicalName applies the listing-name corrections.
func (d *Data) CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if fixed, ok := d.NameCorrections[name]; ok {
		return fixed
	}
	return name
}

// IsBlacklisted reports whether a listings-index token is not a symbol.
func (d *Data) IsBlacklisted(token string) bool {
	for _, bad := range d.SymbolBlacklist {
		if strings.Contains(token, bad) {
			return true
		}
	}
	return false
}

// IsBotWall reports whether a response body is a challenge page.
func (d *Data) IsBotWall(body string) bool {
	return containsAny(body, d.BotWallMarkers)
}

// IsNoData reports whether a page says the requested day has no data.
func (d *Data) IsNoData(body string) bool {
	return containsAny(body, d.NoDataMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
