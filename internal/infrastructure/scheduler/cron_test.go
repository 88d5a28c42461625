package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestCronSchedule_Next(t *testing.T) {
	monday := at(2026, time.October, 19, 10, 0)

	tests := []struct {
		name string
		expr string
		from time.Time
		want time.Time
	}{
		{"nightly next day", "0 2 * * *", monday, at(2026, time.October, 20, 2, 0)},
		{"same day", "0 2 * * *", at(2026, time.October, 19, 1, 59).Add(30 * time.Second), at(2026, time.October, 19, 2, 0)},
		{"strictly after", "0 2 * * *", at(2026, time.October, 19, 2, 0), at(2026, time.October, 20, 2, 0)},
		{"step", "*/15 * * * *", at(2026, time.October, 19, 10, 7), at(2026, time.October, 19, 10, 15)},
		{"weekdays skip weekend", "0 9 * * 1-5", at(2026, time.October, 23, 10, 0), at(2026, time.October, 26, 9, 0)},
		{"list of hours", "30 6,18 * * *", monday, at(2026, time.October, 19, 18, 30)},
		{"day or weekday", "0 0 1,15 * 0", monday, at(2026, time.October, 25, 0, 0)},
		{"sunday as 7", "0 0 * * 7", monday, at(2026, time.October, 25, 0, 0)},
		{"month rollover", "0 0 1 * *", monday, at(2026, time.November, 1, 0, 0)},
		{"year rollover", "@yearly", monday, at(2027, time.January, 1, 0, 0)},
		{"descriptor", "@nightly", monday, at(2026, time.October, 20, 2, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := ParseCron(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cs.Next(tt.from))
		})
	}
}

func TestCronSchedule_NeverMatches(t *testing.T) {
	cs := MustParseCron("0 0 31 2 *")
	assert.True(t, cs.Next(at(2026, time.October, 19, 10, 0)).IsZero())
}

func TestCronSchedule_KeepsLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}
	from := time.Date(2026, time.October, 19, 10, 0, 0, 0, paris)
	next := MustParseCron("0 2 * * *").Next(from)
	assert.Equal(t, time.Date(2026, time.October, 20, 2, 0, 0, 0, paris), next)
	assert.Equal(t, paris, next.Location())
}

func TestParseCron_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 8",
		"5-1 * * * *",
		"*/0 * * * *",
		"a * * * *",
		"1,,2 * * * *",
		"@fortnightly",
	} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestCronSchedule_String(t *testing.T) {
	assert.Equal(t, "@nightly", MustParseCron(" @nightly ").String())
	assert.Equal(t, "0 2 * * *", MustParseCron("0 2 * * *").String())
}

func TestIntervalSchedule(t *testing.T) {
	_, err := NewIntervalSchedule(500 * time.Millisecond)
	assert.Error(t, err)

	s, err := NewIntervalSchedule(6 * time.Hour)
	require.NoError(t, err)
	from := at(2026, time.October, 19, 10, 0)
	assert.Equal(t, at(2026, time.October, 19, 16, 0), s.Next(from))
	assert.Equal(t, "@every 6h0m0s", s.String())
}
