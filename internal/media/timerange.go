package media

import (
	"fmt"
	"math"
	"time"
)

// TimeRange is a [Start, End) window of an asset used to trim an export.
type TimeRange struct {
	Start time.Duration
	End   time.Duration
	// ToEnd marks a range that runs to the end of an asset of unknown
	// duration. End is ignored.
	ToEnd bool
}

// Duration returns the length of the range, or 0 when it is unknown.
func (r TimeRange) Duration() time.Duration {
	if r.ToEnd || r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range selects nothing.
func (r TimeRange) Empty() bool {
	return !r.ToEnd && r.End <= r.Start
}

// String implements fmt.Stringer.
func (r TimeRange) String() string {
	if r.ToEnd {
		return fmt.Sprintf("[%s, end)", r.Start)
	}
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}

// NewTimeRange builds the export window from an optional start and duration
// in seconds. A missing start means the beginning of the asset; a missing
// duration means the rest of the asset. When sourceDuration is known (> 0)
// both ends are clamped to it, so a start at or past the end of the asset
// yields an empty range.
func NewTimeRange(startSec, durationSec *float64, sourceDuration time.Duration) TimeRange {
	var start time.Duration
	if startSec != nil {
		start = seconds(*startSec)
	}
	if durationSec == nil && sourceDuration <= 0 {
		return TimeRange{Start: start, ToEnd: true}
	}

	end := sourceDuration
	if durationSec != nil {
		d := seconds(*durationSec)
		if d > math.MaxInt64-start {
			end = math.MaxInt64
		} else {
			end = start + d
		}
	}

	if sourceDuration > 0 {
		start = min(start, sourceDuration)
		end = min(end, sourceDuration)
	}
	if end < start {
		end = start
	}

	return TimeRange{Start: start, End: end}
}

// seconds converts fractional seconds to a duration, treating negative
// and non-finite values as zero.
func seconds(s float64) time.Duration {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	ns := s * float64(time.Second)
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(ns)
}

// formatSeconds renders a duration the way ffmpeg expects time arguments.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
