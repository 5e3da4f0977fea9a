package media

import "fmt"

// Preset is a named, fixed output configuration.
type Preset struct {
	Name string
	// LongEdge bounds the longer side of the output in pixels. Zero keeps the source size.
	LongEdge int
	// CRF is the x264 constant rate factor.
	CRF int
	// AudioBitrate is the AAC bitrate passed to ffmpeg.
	AudioBitrate string
}

// Quality tiers accepted by PresetForTier.
const (
	TierLowQuality     = 1
	TierMediumQuality  = 2
	TierHighestQuality = 3
	Tier640x480        = 4
	Tier960x540        = 5
	Tier1280x720       = 6
	Tier1920x1080      = 7
)

var (
	PresetLowQuality     = Preset{Name: "LowQuality", LongEdge: 192, CRF: 32, AudioBitrate: "64k"}
	PresetMediumQuality  = Preset{Name: "MediumQuality", LongEdge: 480, CRF: 28, AudioBitrate: "96k"}
	PresetHighestQuality = Preset{Name: "HighestQuality", LongEdge: 0, CRF: 20, AudioBitrate: "192k"}
	Preset640x480        = Preset{Name: "640x480", LongEdge: 640, CRF: 23, AudioBitrate: "128k"}
	Preset960x540        = Preset{Name: "960x540", LongEdge: 960, CRF: 23, AudioBitrate: "128k"}
	Preset1280x720       = Preset{Name: "1280x720", LongEdge: 1280, CRF: 23, AudioBitrate: "128k"}
	Preset1920x1080      = Preset{Name: "1920x1080", LongEdge: 1920, CRF: 23, AudioBitrate: "160k"}
)

var presetsByTier = map[int]Preset{
	TierLowQuality:     PresetLowQuality,
	TierMediumQuality:  PresetMediumQuality,
	TierHighestQuality: PresetHighestQuality,
	Tier640x480:        Preset640x480,
	Tier960x540:        Preset960x540,
	Tier1280x720:       Preset1280x720,
	Tier1920x1080:      Preset1920x1080,
}

// DefaultPreset is used for tiers outside 1-7.
var DefaultPreset = PresetMediumQuality

// PresetForTier returns the preset for a quality tier.
// Unknown tiers fall back to DefaultPreset.
func PresetForTier(tier int) Preset {
	if p, ok := presetsByTier[tier]; ok {
		return p
	}
	return DefaultPreset
}

// scaleFilter returns the ffmpeg scale filter bounding the longer edge,
// or "" when the preset keeps the source size. The output never upscales
// and both sides stay even for yuv420p.
func (p Preset) scaleFilter() string {
	if p.LongEdge <= 0 {
		return ""
	}
	return fmt.Sprintf(
		"scale=w='if(gte(iw,ih),min(iw,%d),-2)':h='if(gte(iw,ih),-2,min(ih,%d))'",
		p.LongEdge, p.LongEdge,
	)
}
