package hmrc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/etnz/cgt/fx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monthlyJSON = `{
  "data": {"id": "2024-6", "type": "exchange_rate_period"},
  "included": [
    {"id": "USD-2024-6", "type": "exchange_rate", "attributes": {"currency_code": "USD", "currency_description": "Dollar", "rate": "1.2727", "validity_start_date": "2024-06-01"}},
    {"id": "EUR-2024-6", "type": "exchange_rate", "attributes": {"currency_code": "EUR", "rate": 1.1834}},
    {"id": "bad", "type": "exchange_rate", "attributes": {"currency_code": "ZZZ", "rate": "2"}}
  ]
}`

const yearlyUnits = "Country,Unit Of Currency,Currency Code,Currency Units per £1\n" +
	"USA,Dollar,USD,1.2435\n" +
	"Eurozone,Euro,EUR,1.1497\n" +
	"Ecuador,Dollar,USD,9.99\n"

const yearlySterling = "\ufeffCountry,Currency,Currency Code,Sterling value of Currency Unit £\n" +
	"USA,Dollar,USD,0.8\n" +
	"Japan,Yen,JPY,0.005\n"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v2/exchange_rates/2024-6":
			assert.Equal(t, "monthly", r.URL.Query().Get("filter[type]"))
			w.Write([]byte(monthlyJSON))
		case r.URL.Path == "/api/v2/exchange_rates/files/average_csv_2023-12.csv":
			w.Write([]byte(yearlyUnits))
		case r.URL.Path == "/api/v2/exchange_rates/files/average_csv_2015-12.csv":
			w.Write([]byte(yearlySterling))
		case strings.HasSuffix(r.URL.Path, "2022-12.csv"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMonthlyRates(t *testing.T) {
	c := New(newServer(t).URL, nil, zerolog.Nop())
	rates, err := c.MonthlyRates(context.Background(), 2024, time.June)
	require.NoError(t, err)
	assert.Len(t, rates, 2)
	assert.True(t, rates["USD"].Equal(decimal.RequireFromString("1.2727")))
	assert.True(t, rates["EUR"].Equal(decimal.RequireFromString("1.1834")))
}

func TestMonthlyRates_NotPublished(t *testing.T) {
	c := New(newServer(t).URL, nil, zerolog.Nop())
	_, err := c.MonthlyRates(context.Background(), 2031, time.January)
	assert.ErrorIs(t, err, fx.ErrRateUnavailable)
}

func TestYearlyAverages_Layouts(t *testing.T) {
	c := New(newServer(t).URL, nil, zerolog.Nop())

	recent, err := c.YearlyAverages(context.Background(), 2023)
	require.NoError(t, err)
	assert.True(t, recent["USD"].Equal(decimal.RequireFromString("1.2435")), "first row wins, got %v", recent["USD"])
	assert.True(t, recent["EUR"].Equal(decimal.RequireFromString("1.1497")))

	older, err := c.YearlyAverages(context.Background(), 2015)
	require.NoError(t, err)
	assert.True(t, older["USD"].Equal(decimal.RequireFromString("1.25")), "got %v", older["USD"])
	assert.True(t, older["JPY"].Equal(decimal.NewFromInt(200)), "got %v", older["JPY"])
}

func TestYearlyAverages_Errors(t *testing.T) {
	c := New(newServer(t).URL, nil, zerolog.Nop())

	_, err := c.YearlyAverages(context.Background(), 2024)
	assert.ErrorIs(t, err, fx.ErrRateUnavailable)

	_, err = c.YearlyAverages(context.Background(), 2022)
	require.Error(t, err)
	assert.NotErrorIs(t, err, fx.ErrRateUnavailable)
}

func TestParseYearly_UnknownLayout(t *testing.T) {
	_, err := parseYearly(strings.NewReader("a,b\n1,2\n"))
	assert.ErrorContains(t, err, "unknown yearly layout")
}
