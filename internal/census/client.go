// Package census looks up place population and income from the Census Bureau
// ACS 5-year API, with an on-disk cache so each state is fetched at most once.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/munistat/jobenrich/internal/util"
)

// stateFIPS maps two-letter state abbreviations to Census FIPS codes.
var stateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// HTTPError is a sanitized summary of a non-2xx Census API response.
//
// Raw bodies are never carried verbatim; only a redacted, truncated hint.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Snippet    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("census api error: op=%s status=%s", e.Op, strings.TrimSpace(e.Status))
	if e.Snippet != "" {
		msg += " body=" + e.Snippet
	}
	return msg
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(strings.NewReplacer("\n", " ", "\r", " ").Replace(string(b)))
	if len(body) > max && s != "" {
		s += "..."
	}
	h.Snippet = s
	return h
}

// Client fetches ACS 5-year place estimates.
type Client struct {
	baseURL *url.URL
	year    int
	http    *http.Client
}

func NewClient(baseURL string, year int) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse census base url: %w", err)
	}
	if year <= 0 {
		year = 2022
	}
	return &Client{
		baseURL: u,
		year:    year,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// FetchStatePlaces queries every place in a state. B01003_001E is total
// population, B19013_001E is median household income; the response is a JSON
// array of string arrays with a header row.
func (c *Client) FetchStatePlaces(ctx context.Context, state string) ([]Place, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	fips, ok := stateFIPS[state]
	if !ok {
		return nil, fmt.Errorf("unknown state %q", state)
	}

	u := *c.baseURL
	u.Path = fmt.Sprintf("/data/%d/acs/acs5", c.year)
	u.RawQuery = url.Values{
		"get": {"NAME,B01003_001E,B19013_001E"},
		"for": {"place:*"},
		"in":  {"state:" + fips},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("census places %s: %w", state, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("census places %s: %w", state, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, newHTTPError("places/"+state, resp, body)
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("census places %s: parse response: %w", state, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	places := make([]Place, 0, len(rows)-1)
	for _, row := range rows[1:] { // first row is the header
		if len(row) < 2 {
			continue
		}
		p := Place{
			State: state,
			Name:  cleanPlaceName(row[0]),
		}
		if v, err := strconv.Atoi(strings.TrimSpace(row[1])); err == nil {
			p.Population = v
		}
		if len(row) > 2 {
			if v, err := strconv.Atoi(strings.TrimSpace(row[2])); err == nil && v > 0 {
				p.MedianIncome = &v
			}
		}
		p.PlaceFIPS = row[len(row)-1]
		places = append(places, p)
	}
	return places, nil
}

// cleanPlaceName reduces an ACS place label to a bare city name:
// "Austin city, Texas" -> "Austin", "Boise City city, Idaho" -> "Boise".
func cleanPlaceName(raw string) string {
	name := raw
	for _, sep := range []string{" city,", " town,", " village,", " CDP,", " borough,", " municipality,"} {
		if i := strings.Index(name, sep); i >= 0 {
			name = name[:i]
		}
	}
	name = strings.TrimSuffix(name, " City")
	return name
}
