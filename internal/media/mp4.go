package media

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ErrNoMoov is returned when an ISO BMFF file has no movie box.
var ErrNoMoov = errors.New("no moov box found")

// MP4Info describes the video track of a progressive MP4/MOV file.
type MP4Info struct {
	Fragmented bool
	// Timescale is the video track's media timescale (ticks per second).
	Timescale uint32
	// SampleCount is the number of video samples.
	SampleCount uint32
	// VideoSampleBytes is the sum of the video sample sizes. It is zero for
	// fragmented files, whose sample sizes live in the fragments.
	VideoSampleBytes int64
	// Duration is the video track's media duration.
	Duration time.Duration
}

// InspectMP4 reads the movie box of the file at path without loading the
// media data.
func InspectMP4(path string) (*MP4Info, error) {
	f, err := os.Open(path) // #nosec G304 - path was validated by the caller
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	mp4File, err := mp4.DecodeFile(f, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	moov := mp4File.Moov
	if mp4File.IsFragmented() && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil {
		return nil, ErrNoMoov
	}

	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		info := &MP4Info{Fragmented: mp4File.IsFragmented()}
		if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
			info.Timescale = mdhd.Timescale
			info.Duration = time.Duration(float64(mdhd.Duration) / float64(mdhd.Timescale) * float64(time.Second))
		}
		if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsz != nil {
			stsz := trak.Mdia.Minf.Stbl.Stsz
			info.SampleCount = stsz.SampleNumber
			info.VideoSampleBytes = sampleBytes(stsz)
		}
		return info, nil
	}

	return nil, ErrNoVideoTrack
}

// sampleBytes sums the sample sizes of a stsz box.
func sampleBytes(stsz *mp4.StszBox) int64 {
	if stsz.SampleUniformSize != 0 {
		return int64(stsz.SampleUniformSize) * int64(stsz.SampleNumber)
	}
	var total int64
	for _, size := range stsz.SampleSize {
		total += int64(size)
	}
	return total
}
