package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// probeOutput is the subset of `ffprobe -print_format json` used here.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideDataList []probeSideData   `json:"side_data_list"`
}

type probeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

type probeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	Tags       map[string]string `json:"tags"`
}

// Tag keys tried in order for title and author. QuickTime files written by
// phones use the com.apple.quicktime namespace.
var (
	titleTags  = []string{"title", "com.apple.quicktime.title"}
	authorTags = []string{"author", "artist", "com.apple.quicktime.author", "com.apple.quicktime.artist"}
)

// ReadMetadata probes path with ffprobe. For MP4/MOV containers the video
// track's sample byte count is read from the sample table.
func (e *FFmpegEngine) ReadMetadata(ctx context.Context, path string) (*Metadata, error) {
	if err := statAsset(path); err != nil {
		return nil, err
	}

	out, err := e.runFFprobe(ctx, path)
	if err != nil {
		return nil, err
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	md, err := metadataFromProbe(path, probe)
	if err != nil {
		return nil, err
	}

	if isMP4Family(probe.Format.FormatName) {
		if info, err := InspectMP4(path); err == nil && info.VideoSampleBytes > 0 {
			md.FileSize = info.VideoSampleBytes
		}
	}
	if md.FileSize == 0 {
		if st, err := os.Stat(path); err == nil {
			md.FileSize = st.Size()
		}
	}

	return md, nil
}

// runFFprobe returns ffprobe's JSON description of path.
func (e *FFmpegEngine) runFFprobe(ctx context.Context, path string) ([]byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// metadataFromProbe maps ffprobe output onto Metadata. The first video
// stream is authoritative for dimensions and rotation.
func metadataFromProbe(path string, probe probeOutput) (*Metadata, error) {
	var video *probeStream
	hasAudio := false
	for i := range probe.Streams {
		s := &probe.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			hasAudio = true
		}
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoVideoTrack, path)
	}

	rotation := streamRotation(*video)
	width, height := video.Width, video.Height
	if rotation == 90 || rotation == 270 {
		width, height = height, width
	}

	duration := parseSeconds(probe.Format.Duration)
	if duration == 0 {
		duration = parseSeconds(video.Duration)
	}

	size, _ := strconv.ParseInt(probe.Format.Size, 10, 64)

	return &Metadata{
		Path:       path,
		Title:      lookupTag(probe, titleTags),
		Author:     lookupTag(probe, authorTags),
		Width:      width,
		Height:     height,
		Rotation:   rotation,
		Duration:   duration,
		FileSize:   size,
		FrameRate:  parseRate(video.AvgFrameRate),
		VideoCodec: video.CodecName,
		HasAudio:   hasAudio,
	}, nil
}

// streamRotation returns the clockwise display rotation of a stream.
// The display matrix side data stores the counter-clockwise angle; the
// legacy "rotate" tag stores the clockwise one.
func streamRotation(s probeStream) int {
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			return normalizeRotation(-sd.Rotation)
		}
	}
	if v, ok := s.Tags["rotate"]; ok {
		if deg, err := strconv.ParseFloat(v, 64); err == nil {
			return normalizeRotation(deg)
		}
	}
	return 0
}

// normalizeRotation snaps deg to the nearest quarter turn in [0, 360).
func normalizeRotation(deg float64) int {
	quarter := int(math.Round(deg/90)) % 4
	if quarter < 0 {
		quarter += 4
	}
	return quarter * 90
}

// lookupTag returns the first non-empty tag among keys, searching the
// container tags before the stream tags, case-insensitively.
func lookupTag(probe probeOutput, keys []string) string {
	sources := []map[string]string{probe.Format.Tags}
	for _, s := range probe.Streams {
		sources = append(sources, s.Tags)
	}
	for _, key := range keys {
		for _, tags := range sources {
			for k, v := range tags {
				if strings.EqualFold(k, key) && v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// parseSeconds parses ffprobe's decimal seconds; "N/A" and junk yield 0.
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return seconds(f)
}

// parseRate parses a rational frame rate such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// isMP4Family reports whether ffprobe's format name is the ISO BMFF demuxer.
func isMP4Family(formatName string) bool {
	for _, name := range strings.Split(formatName, ",") {
		switch name {
		case "mov", "mp4", "m4a", "3gp", "3g2", "mj2":
			return true
		}
	}
	return false
}
