package fx

import (
	"testing"

	"github.com/etnz/cgt/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseStrategy(" Daily-Spot ")
	require.NoError(t, err)
	assert.Equal(t, DailySpot, got)

	_, err = ParseStrategy("weekly")
	assert.Error(t, err)
}

func TestStrategy_DateKey(t *testing.T) {
	on := date.New(2024, 6, 17)
	assert.Equal(t, "2024-06", Monthly.DateKey(on))
	assert.Equal(t, "2024", YearlyAverage.DateKey(on))
	assert.Equal(t, "2024-06-17", DailySpot.DateKey(on))
	assert.Equal(t, "monthly-2024-06-USD", CacheKey(Monthly, Monthly.DateKey(on), "USD"))
}
