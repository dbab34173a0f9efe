package covid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/trinistocks/pipeline/internal/domain"
)

// AggregatorFileLayout names one daily file of the aggregator.
const AggregatorFileLayout = "01-02-2006"

// column aliases seen across the aggregator's history, keyed by the
// canonical column, in order of precedence
var columnAliases = map[string][]string{
	"province_state": {"province_state", "province/state", "provincestate", "province"},
	"country_region": {"country_region", "country/region", "countryregion", "country"},
	"last_update":    {"last_update", "last update", "lastupdate"},
	"lat":            {"lat", "latitude"},
	"long":           {"long", "long_", "longitude", "lng"},
	"confirmed":      {"confirmed"},
	"deaths":         {"deaths"},
	"recovered":      {"recovered"},
	"active":         {"active"},
}

// bare NaN tokens are not valid JSON
var nanToken = regexp.MustCompile(`(:\s*)-?NaN\b`)

// ParseAggregator decodes one daily file. Columns are renamed to their
// canonical names, unknown columns are dropped and missing ones stay
// null.
func ParseAggregator(body []byte, date domain.Date) ([]domain.WorldwideRecord, error) {
	body = nanToken.ReplaceAll(body, []byte("${1}null"))

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode aggregator file for %s: %w", date, err)
	}

	out := make([]domain.WorldwideRecord, 0, len(rows))
	for _, raw := range rows {
		row := canonicalRow(raw)
		country := strings.TrimSpace(row["country_region"])
		if country == "" {
			continue
		}
		rec := domain.WorldwideRecord{
			Date:          date,
			CountryRegion: country,
			ProvinceState: strings.TrimSpace(row["province_state"]),
			Lat:           domain.ParseFloat(row["lat"]),
			Long:          domain.ParseFloat(row["long"]),
			Confirmed:     count(row["confirmed"]),
			Deaths:        count(row["deaths"]),
			Recovered:     count(row["recovered"]),
			Active:        count(row["active"]),
		}
		if u := strings.TrimSpace(row["last_update"]); u != "" {
			rec.LastUpdate = null.StringFrom(u)
		}
		out = append(out, rec)
	}
	return out, nil
}

// canonicalRow renames raw's columns. When a file carries several aliases
// of one column, the first non-blank alias in precedence order wins.
func canonicalRow(raw map[string]any) map[string]string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lowered := make(map[string]string, len(raw))
	for _, k := range keys {
		v := raw[k]
		if v == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(k))
		if _, dup := lowered[name]; !dup {
			lowered[name] = fmt.Sprint(v)
		}
	}

	row := make(map[string]string, len(columnAliases))
	for canonical, aliases := range columnAliases {
		for _, a := range aliases {
			if v, ok := lowered[a]; ok && strings.TrimSpace(v) != "" {
				row[canonical] = v
				break
			}
		}
	}
	return row
}

// count keeps only the digits of a count column. Fractions such as
// "12.0" are truncated first.
func count(s string) null.Int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return domain.ParseInt(domain.StripDigits(s))
}
