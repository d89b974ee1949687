package ffmpeg

import (
	"fmt"
)

// ScaleFilter represents a scale filter.
type ScaleFilter struct {
	Width  int // Use -1 or -2 to auto-calculate maintaining aspect ratio
	Height int // Use -2 to ensure even dimensions (required for h264)
}

// String returns the ffmpeg filter string.
func (s ScaleFilter) String() string {
	return fmt.Sprintf("scale=%d:%d", s.Width, s.Height)
}

// Scale adds a scale filter.
// Use -2 for width or height to auto-calculate while maintaining aspect ratio
// and ensuring even dimensions (required for h264).
func Scale(width, height int) Option {
	return Filter(ScaleFilter{width, height}.String())
}

// ScaleWidth scales to a specific width, auto-calculating height with even dimensions.
func ScaleWidth(width int) Option {
	return Scale(width, -2)
}

// ScaleHeight scales to a specific height, auto-calculating width with even dimensions.
func ScaleHeight(height int) Option {
	return Scale(-2, height)
}

// ScaleHeightCap scales to at most the given height, never upscaling. Sources
// shorter than the cap pass through at their original height.
func ScaleHeightCap(height int) Option {
	return Filter(fmt.Sprintf("scale=-2:'min(%d,ih)'", height))
}

// EvenDimensions ensures output dimensions are divisible by 2 (required for h264).
func EvenDimensions() Option {
	return Filter("scale=trunc(iw/2)*2:trunc(ih/2)*2")
}
