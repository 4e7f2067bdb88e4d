package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"zero", 0, "PT0S"},
		{"whole seconds", 30 * time.Second, "PT30S"},
		{"sub-second dropped", 1500 * time.Millisecond, "PT1S"},
		{"below one second", 999 * time.Millisecond, "PT0S"},
		{"hours stay in seconds", 2 * time.Hour, "PT7200S"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEncodeDurationRejectsNegative(t *testing.T) {
	_, err := EncodeDuration(-time.Second)
	assert.Error(t, err)
}

func TestDurationRoundTripTruncatesToSeconds(t *testing.T) {
	inputs := []time.Duration{
		0,
		time.Second,
		10*time.Second + 250*time.Millisecond,
		72 * time.Hour,
		123456789 * time.Microsecond,
	}

	for _, d := range inputs {
		encoded, err := EncodeDuration(d)
		require.NoError(t, err)

		decoded, err := DecodeDuration(encoded)
		require.NoError(t, err)
		assert.Equal(t, d.Truncate(time.Second), decoded, "round trip of %s via %s", d, encoded)
	}
}

func TestDecodeDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"", 0, false},
		{"PT10M", 10 * time.Minute, false},
		{"PT72H", 72 * time.Hour, false},
		{"P1DT2H3M4S", 26*time.Hour + 3*time.Minute + 4*time.Second, false},
		{"P3D", 72 * time.Hour, false},
		{"PT1.5S", time.Second, false},
		{"PT", 0, true},
		{"P", 0, true},
		{"30s", 0, true},
		{"PTxS", 0, true},
		{"P1Y", 365 * 24 * time.Hour, false},
		{"P1M", 30 * 24 * time.Hour, false},
		{"P1Y2M3DT4M", (365+60+3)*24*time.Hour + 4*time.Minute, false},
		{"P100000D", 100000 * 24 * time.Hour, false},
		{"P200000D", 0, true},
		{"PT9223372036854775807S", 0, true},
		{"P100000DT2562047H", 0, true},
		{"P99999999999999999999D", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := DecodeDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidDuration(t *testing.T) {
	assert.True(t, ValidDuration("PT30S"))
	assert.True(t, ValidDuration("P1D"))
	assert.True(t, ValidDuration("P1Y2M"))
	assert.False(t, ValidDuration("PT"))
	assert.False(t, ValidDuration("thirty seconds"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "Past due", FormatDuration(-time.Minute))
	assert.Equal(t, "45 seconds", FormatDuration(45*time.Second))
	assert.Equal(t, "2 minutes, 5 seconds", FormatDuration(125*time.Second))
	assert.Equal(t, "3 hours, 15 minutes", FormatDuration(3*time.Hour+15*time.Minute))
	assert.Equal(t, "2 days, 4 hours", FormatDuration(52*time.Hour))
}
