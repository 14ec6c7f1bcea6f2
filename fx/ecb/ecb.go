// Package ecb fetches the daily euro reference rates of the European Central
// Bank and cross rates them into currency units per pound.
package ecb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/date"
	"github.com/etnz/cgt/webcache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the ECB data portal API.
const DefaultBaseURL = "https://data-api.ecb.europa.eu"

// Client implements fx.DailySource.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// New returns a client of the API at baseURL, DefaultBaseURL when empty.
func New(baseURL string, client *http.Client, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    client,
		Log:     log.With().Str("component", "ecb").Logger(),
	}
}

// response is the SDMX-JSON document of the data API.
type response struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
	Structure struct {
		Dimensions struct {
			Series      []dimension `json:"series"`
			Observation []dimension `json:"observation"`
		} `json:"dimensions"`
	} `json:"structure"`
}

type dimension struct {
	ID     string `json:"id"`
	Values []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"values"`
}

// DailyRates returns, for each currency, its daily rate in units per 1 GBP
// between from and to. Days without publication are absent.
func (c *Client) DailyRates(ctx context.Context, from, to date.Date, currencies []string) (map[string]*date.History[decimal.Decimal], error) {
	keys := []string{cgt.GBP}
	for _, cur := range currencies {
		if cur != "EUR" && cur != cgt.GBP {
			keys = append(keys, cur)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	q := url.Values{}
	q.Set("startPeriod", from.String())
	q.Set("endPeriod", to.String())
	q.Set("format", "jsondata")
	addr := fmt.Sprintf("%s/service/data/EXR/D.%s.EUR.SP00.A?%s", c.BaseURL, strings.Join(keys, "+"), q.Encode())

	c.Log.Debug().Str("url", addr).Msg("fetching daily rates")
	var resp response
	err := webcache.GetJSON(ctx, c.HTTP, addr, &resp)
	var serr *webcache.StatusError
	if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
		// No observation in the range.
		return map[string]*date.History[decimal.Decimal]{}, nil
	}
	if err != nil {
		return nil, err
	}

	perEUR, err := resp.series()
	if err != nil {
		return nil, err
	}
	out := cross(perEUR, currencies)
	c.Log.Info().Stringer("from", from).Stringer("to", to).Strs("currencies", currencies).Msg("daily rates fetched")
	return out, nil
}

// series returns the observations, in currency units per 1 EUR, by currency.
func (r *response) series() (map[string]*date.History[decimal.Decimal], error) {
	out := make(map[string]*date.History[decimal.Decimal])
	if len(r.DataSets) == 0 {
		return out, nil
	}
	dims := r.Structure.Dimensions
	curPos := slices.IndexFunc(dims.Series, func(d dimension) bool { return d.ID == "CURRENCY" })
	if curPos < 0 || len(dims.Observation) == 0 {
		return nil, errors.New("unexpected ECB response structure")
	}
	times := dims.Observation[0].Values

	for key, s := range r.DataSets[0].Series {
		parts := strings.Split(key, ":")
		if curPos >= len(parts) {
			continue
		}
		i, err := strconv.Atoi(parts[curPos])
		if err != nil || i >= len(dims.Series[curPos].Values) {
			continue
		}
		cur := dims.Series[curPos].Values[i].ID
		h := new(date.History[decimal.Decimal])
		for idx, obs := range s.Observations {
			j, err := strconv.Atoi(idx)
			if err != nil || j >= len(times) || len(obs) == 0 || obs[0] <= 0 {
				continue
			}
			day, err := date.Parse(times[j].ID)
			if err != nil {
				continue
			}
			h.Append(day, decimal.NewFromFloat(obs[0]))
		}
		out[cur] = h
	}
	return out, nil
}

// cross converts per EUR series into per GBP series: X/GBP = (X/EUR) / (GBP/EUR).
func cross(perEUR map[string]*date.History[decimal.Decimal], currencies []string) map[string]*date.History[decimal.Decimal] {
	out := make(map[string]*date.History[decimal.Decimal])
	gbp := perEUR[cgt.GBP]
	if gbp == nil {
		return out
	}
	for _, cur := range currencies {
		if cur == cgt.GBP {
			continue
		}
		h := new(date.History[decimal.Decimal])
		for day, g := range gbp.Values() {
			x := decimal.NewFromInt(1)
			if cur != "EUR" {
				var ok bool
				if perEUR[cur] == nil {
					break
				}
				if x, ok = perEUR[cur].Get(day); !ok {
					continue
				}
			}
			h.Append(day, x.DivRound(g, 10))
		}
		out[cur] = h
	}
	return out
}
