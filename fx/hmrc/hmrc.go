// Package hmrc fetches the official HMRC exchange rates: monthly rates from
// the trade tariff JSON API and yearly averages from its CSV files.
package hmrc

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/cgt"
	"github.com/etnz/cgt/fx"
	"github.com/etnz/cgt/webcache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the trade tariff service hosting HMRC rates.
const DefaultBaseURL = "https://www.trade-tariff.service.gov.uk"

// Client implements fx.MonthlySource and fx.YearlySource.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// New returns a client of the service at baseURL, DefaultBaseURL when empty.
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
		Log:     log.With().Str("component", "hmrc").Logger(),
	}
}

// get fetches addr, a 404 means the rates are not published.
func (c *Client) get(ctx context.Context, addr string) ([]byte, error) {
	c.Log.Debug().Str("url", addr).Msg("fetching rates")
	body, err := webcache.Get(ctx, c.HTTP, addr)
	var serr *webcache.StatusError
	if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %w", fx.ErrRateUnavailable, err)
	}
	return body, err
}

// MonthlyRates returns the rates of a month, in currency units per 1 GBP.
func (c *Client) MonthlyRates(ctx context.Context, year int, month time.Month) (fx.Rates, error) {
	addr := fmt.Sprintf("%s/api/v2/exchange_rates/%d-%d?filter[type]=monthly", c.BaseURL, year, int(month))
	body, err := c.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	rates, err := parseMonthly(body)
	if err != nil {
		return nil, fmt.Errorf("monthly rates %d-%02d: %w", year, int(month), err)
	}
	c.Log.Info().Int("year", year).Stringer("month", month).Int("currencies", len(rates)).Msg("monthly rates fetched")
	return rates, nil
}

// parseMonthly reads a JSON:API document whose included resources carry
// currency_code and rate attributes.
func parseMonthly(body []byte) (fx.Rates, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	var attrs []any
	for _, path := range []string{"$.included[*].attributes", "$.data[*].attributes"} {
		v, err := jsonpath.Get(path, doc)
		if err != nil {
			continue
		}
		if list, ok := v.([]any); ok && len(list) > 0 {
			attrs = list
			break
		}
	}
	if len(attrs) == 0 {
		return nil, errors.New("no exchange rate in response")
	}

	rates := make(fx.Rates, len(attrs))
	for _, a := range attrs {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		code, _ := m["currency_code"].(string)
		code = strings.ToUpper(strings.TrimSpace(code))
		if cgt.ValidateCurrency(code) != nil {
			continue
		}
		rate, err := toDecimal(m["rate"])
		if err != nil || !rate.IsPositive() {
			continue
		}
		rates[code] = rate
	}
	if len(rates) == 0 {
		return nil, errors.New("no usable exchange rate in response")
	}
	return rates, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected rate %v", v)
	}
}

// YearlyAverages returns the averages of a calendar year, in currency units
// per 1 GBP.
func (c *Client) YearlyAverages(ctx context.Context, year int) (fx.Rates, error) {
	addr := fmt.Sprintf("%s/api/v2/exchange_rates/files/average_csv_%d-12.csv", c.BaseURL, year)
	body, err := c.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	rates, err := parseYearly(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("yearly averages %d: %w", year, err)
	}
	c.Log.Info().Int("year", year).Int("currencies", len(rates)).Msg("yearly averages fetched")
	return rates, nil
}

// Yearly files come in two layouts: recent ones give currency units per
// pound, older ones the sterling value of one currency unit.
var (
	codeColumns     = []string{"currency code", "code"}
	unitsColumns    = []string{"currency units per £1", "average for the year", "year average"}
	sterlingColumns = []string{"sterling value of currency unit £", "sterling value of currency unit"}
)

func column(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, n := range names {
			if strings.HasPrefix(h, n) {
				return i
			}
		}
	}
	return -1
}

func parseYearly(r io.Reader) (fx.Rates, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	code := column(header, codeColumns)
	rateCol, invert := column(header, unitsColumns), false
	if rateCol < 0 {
		rateCol, invert = column(header, sterlingColumns), true
	}
	if code < 0 || rateCol < 0 {
		return nil, fmt.Errorf("unknown yearly layout %q", header)
	}

	rates := make(fx.Rates)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= max(code, rateCol) {
			continue
		}
		cur := strings.ToUpper(strings.TrimSpace(rec[code]))
		if cgt.ValidateCurrency(cur) != nil {
			continue
		}
		v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(rec[rateCol]), ",", ""))
		if err != nil || !v.IsPositive() {
			continue
		}
		if invert {
			v = decimal.NewFromInt(1).DivRound(v, 8)
		}
		// Several countries share a currency, the first row wins.
		if _, dup := rates[cur]; !dup {
			rates[cur] = v
		}
	}
	if len(rates) == 0 {
		return nil, errors.New("no usable rate in file")
	}
	return rates, nil
}
