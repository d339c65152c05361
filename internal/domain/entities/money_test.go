package entities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pylon-apis/pylon/internal/domain/entities"
)

func TestParseUSD(t *testing.T) {
	tests := []struct {
		in   string
		mode entities.RoundMode
		want int64
	}{
		{"$0.01", entities.RoundUp, 10_000},
		{"0.01", entities.RoundUp, 10_000},
		{"0.005", entities.RoundUp, 5_000},
		{"1", entities.RoundUp, 1_000_000},
		{"$1.50 USD", entities.RoundUp, 1_500_000},
		{"0.000001", entities.RoundUp, 1},
		// Sub-micro digits round by mode.
		{"0.0000004", entities.RoundUp, 1},
		{"0.0000004", entities.RoundDown, 0},
		{"0.0000019", entities.RoundDown, 1},
	}
	for _, tt := range tests {
		got, err := entities.ParseUSD(tt.in, tt.mode)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseUSD_Rejects(t *testing.T) {
	for _, in := range []string{"", "-0.01", "$-1", "abc", "1.2.3", "$", "1e6"} {
		_, err := entities.ParseUSD(in, entities.RoundUp)
		assert.Error(t, err, in)
	}
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.01", entities.FormatUSD(10_000))
	assert.Equal(t, "$0.005", entities.FormatUSD(5_000))
	assert.Equal(t, "$1.00", entities.FormatUSD(1_000_000))
	assert.Equal(t, "$0.25", entities.FormatUSD(250_000))
	assert.Equal(t, "$0.000001", entities.FormatUSD(1))
	assert.Equal(t, "$0.00", entities.FormatUSD(0))
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, micros := range []int64{1, 1_000, 5_000, 10_000, 123_456, 1_000_000, 250_000} {
		got, err := entities.ParseUSD(entities.FormatUSD(micros), entities.RoundUp)
		assert.NoError(t, err)
		assert.Equal(t, micros, got)
	}
}

func TestRoundUpToMicros(t *testing.T) {
	assert.Equal(t, int64(11_000), entities.RoundUpToMicros(10_001, 1_000))
	assert.Equal(t, int64(10_000), entities.RoundUpToMicros(10_000, 1_000))
	assert.Equal(t, int64(1_000), entities.RoundUpToMicros(1, 1_000))
	assert.Equal(t, int64(0), entities.RoundUpToMicros(0, 1_000))
}
