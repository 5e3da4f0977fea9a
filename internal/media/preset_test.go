package media

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresetForTier(t *testing.T) {
	tests := []struct {
		tier int
		want Preset
	}{
		{TierLowQuality, PresetLowQuality},
		{TierMediumQuality, PresetMediumQuality},
		{TierHighestQuality, PresetHighestQuality},
		{Tier640x480, Preset640x480},
		{Tier960x540, Preset960x540},
		{Tier1280x720, Preset1280x720},
		{Tier1920x1080, Preset1920x1080},
		{0, DefaultPreset},
		{8, DefaultPreset},
		{-1, DefaultPreset},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PresetForTier(tt.tier), "tier %d", tt.tier)
	}
}

func TestPreset_ScaleFilter(t *testing.T) {
	assert.Empty(t, PresetHighestQuality.scaleFilter())
	assert.Contains(t, Preset1280x720.scaleFilter(), "min(iw,1280)")
	assert.Contains(t, Preset1280x720.scaleFilter(), "min(ih,1280)")
}

func ptr(f float64) *float64 { return &f }

func TestNewTimeRange(t *testing.T) {
	src := 10 * time.Second

	tests := []struct {
		name     string
		start    *float64
		duration *float64
		source   time.Duration
		want     TimeRange
	}{
		{"whole asset", nil, nil, src, TimeRange{Start: 0, End: src}},
		{"start only", ptr(2), nil, src, TimeRange{Start: 2 * time.Second, End: src}},
		{"start and duration", ptr(2), ptr(3), src, TimeRange{Start: 2 * time.Second, End: 5 * time.Second}},
		{"duration only", nil, ptr(4.5), src, TimeRange{Start: 0, End: 4500 * time.Millisecond}},
		{"duration past end is clamped", ptr(8), ptr(5), src, TimeRange{Start: 8 * time.Second, End: src}},
		{"start past end is clamped", ptr(20), nil, src, TimeRange{Start: src, End: src}},
		{"zero duration", ptr(2), ptr(0), src, TimeRange{Start: 2 * time.Second, End: 2 * time.Second}},
		{"negative values are zero", ptr(-3), ptr(-1), src, TimeRange{Start: 0, End: 0}},
		{"NaN start is zero", ptr(math.NaN()), ptr(1), src, TimeRange{Start: 0, End: time.Second}},
		{"huge duration saturates", ptr(1), ptr(math.MaxFloat64), 0, TimeRange{Start: time.Second, End: math.MaxInt64}},
		{"unknown source duration", ptr(1), ptr(2), 0, TimeRange{Start: time.Second, End: 3 * time.Second}},
		{"unknown source duration without duration", ptr(1), nil, 0, TimeRange{Start: time.Second, ToEnd: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTimeRange(tt.start, tt.duration, tt.source)
			assert.Equal(t, tt.want, got)
			if !got.ToEnd {
				assert.GreaterOrEqual(t, got.End, got.Start)
			}
		})
	}
}

func TestTimeRange_Duration(t *testing.T) {
	assert.Equal(t, 3*time.Second, TimeRange{Start: time.Second, End: 4 * time.Second}.Duration())
	assert.Zero(t, TimeRange{Start: 4 * time.Second, End: time.Second}.Duration())
	assert.Equal(t, "[1s, 4s)", TimeRange{Start: time.Second, End: 4 * time.Second}.String())
	assert.Zero(t, TimeRange{Start: time.Second, ToEnd: true}.Duration())
	assert.Equal(t, "[1s, end)", TimeRange{Start: time.Second, ToEnd: true}.String())
}

func TestTimeRange_Empty(t *testing.T) {
	src := 10 * time.Second

	assert.True(t, NewTimeRange(ptr(2), ptr(0), src).Empty(), "zero duration")
	assert.True(t, NewTimeRange(ptr(10), nil, src).Empty(), "start at the end")
	assert.True(t, NewTimeRange(ptr(25), ptr(3), src).Empty(), "start past the end")
	assert.True(t, NewTimeRange(ptr(2), ptr(0), 0).Empty(), "zero duration, unknown source")
	assert.False(t, NewTimeRange(ptr(2), ptr(3), src).Empty())
	assert.False(t, NewTimeRange(ptr(2), nil, 0).Empty(), "open range of unknown length")
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.500", formatSeconds(1500*time.Millisecond))
	assert.Equal(t, "0.000", formatSeconds(0))
}
