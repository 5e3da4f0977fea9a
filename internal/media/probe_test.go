package media

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portraitProbe = `{
  "streams": [
    {
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1920,
      "height": 1080,
      "avg_frame_rate": "30000/1001",
      "duration": "12.512",
      "side_data_list": [
        {"side_data_type": "Display Matrix", "rotation": -90}
      ]
    },
    {"codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {
    "filename": "clip.mov",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "12.500000",
    "size": "1048576",
    "tags": {
      "com.apple.quicktime.title": "Beach",
      "com.apple.quicktime.author": "Alex"
    }
  }
}`

func decodeProbe(t *testing.T, s string) probeOutput {
	t.Helper()
	var p probeOutput
	require.NoError(t, json.Unmarshal([]byte(s), &p))
	return p
}

func TestMetadataFromProbe(t *testing.T) {
	t.Run("portrait quicktime clip", func(t *testing.T) {
		md, err := metadataFromProbe("clip.mov", decodeProbe(t, portraitProbe))
		require.NoError(t, err)

		assert.Equal(t, "clip.mov", md.Path)
		assert.Equal(t, "Beach", md.Title)
		assert.Equal(t, "Alex", md.Author)
		assert.Equal(t, 90, md.Rotation)
		assert.Equal(t, 1080, md.Width)
		assert.Equal(t, 1920, md.Height)
		assert.Equal(t, 12500*time.Millisecond, md.Duration)
		assert.Equal(t, int64(1048576), md.FileSize)
		assert.InDelta(t, 29.97, md.FrameRate, 0.01)
		assert.Equal(t, "h264", md.VideoCodec)
		assert.True(t, md.HasAudio)
	})

	t.Run("rotate tag and stream duration fallback", func(t *testing.T) {
		p := decodeProbe(t, `{
		  "streams": [{"codec_type": "video", "width": 640, "height": 480,
		    "duration": "3.0", "tags": {"rotate": "180", "TITLE": "Upside"}}],
		  "format": {"format_name": "matroska,webm", "duration": "N/A"}
		}`)
		md, err := metadataFromProbe("a.mkv", p)
		require.NoError(t, err)

		assert.Equal(t, 180, md.Rotation)
		assert.Equal(t, 640, md.Width)
		assert.Equal(t, 480, md.Height)
		assert.Equal(t, 3*time.Second, md.Duration)
		assert.Equal(t, "Upside", md.Title)
		assert.Empty(t, md.Author)
		assert.False(t, md.HasAudio)
	})

	t.Run("audio only", func(t *testing.T) {
		p := decodeProbe(t, `{"streams": [{"codec_type": "audio"}], "format": {}}`)
		_, err := metadataFromProbe("song.m4a", p)
		assert.ErrorIs(t, err, ErrNoVideoTrack)
	})
}

func TestNormalizeRotation(t *testing.T) {
	tests := map[float64]int{
		0:    0,
		90:   90,
		-90:  270,
		180:  180,
		-180: 180,
		270:  270,
		360:  0,
		89.6: 90,
		-450: 270,
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeRotation(in), "rotation %v", in)
	}
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 25.0, parseRate("25/1"), 1e-9)
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.001)
	assert.InDelta(t, 24.0, parseRate("24"), 1e-9)
	assert.Zero(t, parseRate("0/0"))
	assert.Zero(t, parseRate(""))
}

func TestIsMP4Family(t *testing.T) {
	assert.True(t, isMP4Family("mov,mp4,m4a,3gp,3g2,mj2"))
	assert.False(t, isMP4Family("matroska,webm"))
	assert.False(t, isMP4Family(""))
}

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=0",
		"out_time_us=N/A",
		"out_time_us=1000000",
		"progress=continue",
		"out_time_us=500000",
		"out_time_ms=2500000",
		"out_time_us=9000000",
		"progress=end",
	}, "\n")

	var got []float64
	err := parseProgress(strings.NewReader(input), 4*time.Second, func(p float64) {
		got = append(got, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{25, 62.5, 99.9}, got)
}

func TestParseProgress_UnknownTotal(t *testing.T) {
	called := false
	err := parseProgress(strings.NewReader("out_time_us=1000000\n"), 0, func(float64) {
		called = true
	})
	require.NoError(t, err)
	assert.False(t, called)
}
