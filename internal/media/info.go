package media

import "time"

// Info is the caller-facing description of a video asset. It is built
// fresh for every request and never shared.
type Info struct {
	Path   string `json:"path"`
	Title  string `json:"title"`
	Author string `json:"author"`
	// Width and Height are display dimensions, after rotation.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Duration is in milliseconds.
	Duration    float64 `json:"duration"`
	Filesize    int64   `json:"filesize"`
	Orientation int     `json:"orientation"`
	// IsCancel is only set on compression results.
	IsCancel *bool `json:"isCancel,omitempty"`
}

// NewInfo converts engine metadata into an Info.
func NewInfo(md *Metadata) *Info {
	return &Info{
		Path:        md.Path,
		Title:       md.Title,
		Author:      md.Author,
		Width:       md.Width,
		Height:      md.Height,
		Duration:    float64(md.Duration) / float64(time.Millisecond),
		Filesize:    md.FileSize,
		Orientation: md.Rotation,
	}
}

// WithCancel returns a copy of i carrying the isCancel flag.
func (i *Info) WithCancel(cancelled bool) *Info {
	c := *i
	c.IsCancel = &cancelled
	return &c
}
