package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		raw  string
		want Interval
		ok   bool
	}{
		{raw: "1 month", want: Interval{Count: 1, Unit: UnitMonth}, ok: true},
		{raw: "3 months", want: Interval{Count: 3, Unit: UnitMonth}, ok: true},
		{raw: " 12 Months ", want: Interval{Count: 12, Unit: UnitMonth}, ok: true},
		{raw: "1 year", want: Interval{Count: 1, Unit: UnitYear}, ok: true},
		{raw: "2 weeks", want: Interval{Count: 2, Unit: UnitWeek}, ok: true},
		{raw: "month", ok: false},
		{raw: "0 months", ok: false},
		{raw: "1 fortnight", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseInterval(tc.raw)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimes(t *testing.T) {
	cases := []struct {
		interval string
		years    int
		want     int
	}{
		{interval: "1 month", years: 2, want: 23},
		{interval: "3 months", years: 1, want: 3},
		{interval: "12 months", years: 5, want: 4},
		{interval: "12 months", years: 2, want: 1},
		{interval: "1 year", years: 3, want: 2},
	}
	for _, tc := range cases {
		iv, err := ParseInterval(tc.interval)
		require.NoError(t, err)
		got, err := iv.Times(tc.years)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tc.want, *got, "%s x %d", tc.interval, tc.years)
	}
}

func TestTimesOpenEnded(t *testing.T) {
	for _, raw := range []string{"1 month", "2 weeks", "1 year"} {
		iv, err := ParseInterval(raw)
		require.NoError(t, err)
		got, err := iv.Times(0)
		require.NoError(t, err)
		assert.Nil(t, got, raw)
	}
}

func TestTimesRejectsSingleChargeTerm(t *testing.T) {
	for _, raw := range []string{"12 months", "1 year"} {
		iv, err := ParseInterval(raw)
		require.NoError(t, err)
		got, err := iv.Times(1)
		assert.ErrorIs(t, err, ErrInvalidInterval, raw)
		assert.Nil(t, got)
	}
}

func TestProviderInterval(t *testing.T) {
	cases := map[string]string{
		"1 month":  "1 month",
		"3 Months": "3 months",
		"2 weeks":  "2 weeks",
		"1 day":    "1 day",
		"1 year":   "12 months",
		"2 years":  "24 months",
	}
	for raw, want := range cases {
		iv, err := ParseInterval(raw)
		require.NoError(t, err)
		assert.Equal(t, want, iv.Provider(), raw)
	}
}

func TestTimesRejectsWeeksWithYears(t *testing.T) {
	iv, err := ParseInterval("1 week")
	require.NoError(t, err)
	_, err = iv.Times(1)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestAddTo(t *testing.T) {
	base := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	month, _ := ParseInterval("1 month")
	week, _ := ParseInterval("2 weeks")
	year, _ := ParseInterval("1 year")

	assert.Equal(t, "2024-02-15", month.AddTo(base).Format(time.DateOnly))
	assert.Equal(t, "2024-01-29", week.AddTo(base).Format(time.DateOnly))
	assert.Equal(t, "2025-01-15", year.AddTo(base).Format(time.DateOnly))
}
