package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetZone(t *testing.T) {
	t.Cleanup(func() { _ = SetZone(DefaultZoneName) })

	require.NoError(t, SetZone("UTC"))
	assert.Equal(t, "UTC", Zone().String())

	assert.Error(t, SetZone("Mars/Olympus"))
	assert.Equal(t, "UTC", Zone().String())
}

func TestNextSafeNotificationTime(t *testing.T) {
	require.NoError(t, SetZone("UTC"))
	t.Cleanup(func() { _ = SetZone(DefaultZoneName) })

	early := time.Date(2026, 6, 10, 6, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC), NextSafeNotificationTime(early))

	late := time.Date(2026, 6, 10, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 11, 8, 0, 0, 0, time.UTC), NextSafeNotificationTime(late))

	inside := time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)
	assert.True(t, IsSafeNotificationTime(inside))
	assert.Equal(t, inside, NextSafeNotificationTime(inside))
}

func TestFormatRelative(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "à l'instant"},
		{5 * time.Minute, "il y a 5 min"},
		{3 * time.Hour, "il y a 3 h"},
		{30 * time.Hour, "hier"},
		{-30 * time.Hour, "demain"},
		{-72 * time.Hour, "dans 3 jours"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRelative(tt.d))
	}
}

func TestFormatFrench(t *testing.T) {
	require.NoError(t, SetZone("UTC"))
	t.Cleanup(func() { _ = SetZone(DefaultZoneName) })

	ts := time.Date(2026, 7, 3, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "03/07/2026 à 09h05", FormatFrench(ts))
	assert.True(t, IsSameDay(ts, ts.Add(2*time.Hour)))
}
