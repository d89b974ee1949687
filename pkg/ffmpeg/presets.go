package ffmpeg

import (
	"context"
	"time"
)

// Preset bundles combine common option combinations.

// PresetProxy264 returns options for web-playable proxy encoding. The height
// cap preserves aspect ratio and never upscales short sources.
func PresetProxy264(maxHeight int) []Option {
	return []Option{
		VideoCodec("libx264"),
		Preset("fast"),
		CRF(23),
		PixelFormat("yuv420p"),
		ScaleHeightCap(maxHeight),
	}
}

// PresetProxyAAC returns the audio options paired with PresetProxy264.
func PresetProxyAAC() []Option {
	return []Option{
		AudioCodec("aac"),
		AudioBitrate("128k"),
	}
}

// ThumbnailOptions configures thumbnail extraction.
type ThumbnailOptions struct {
	Offset   time.Duration // Where to extract from (default: 1s)
	MaxWidth int           // Maximum width (default: 480)
	Quality  int           // JPEG quality 1-31, lower is better (default: 2)
}

// ExtractThumbnailCapture extracts a single frame as an image and returns
// the ffmpeg logs alongside any error.
func ExtractThumbnailCapture(ctx context.Context, input, output string, opts *ThumbnailOptions) RunResult {
	if opts == nil {
		opts = &ThumbnailOptions{}
	}
	if opts.Offset == 0 {
		opts.Offset = 1 * time.Second
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 480
	}
	if opts.Quality == 0 {
		opts.Quality = 2
	}

	return RunCapture(ctx, input, output,
		Seek(opts.Offset),
		ScaleWidth(opts.MaxWidth),
		Frames(1),
		Quality(opts.Quality),
	)
}

// ScaleImageCapture re-renders a still image at a capped width. Used for
// image thumbnails where frame extraction does not apply.
func ScaleImageCapture(ctx context.Context, input, output string, maxWidth int) RunResult {
	if maxWidth == 0 {
		maxWidth = 480
	}
	return RunCapture(ctx, input, output,
		ScaleWidth(maxWidth),
		Quality(2),
	)
}

// Flatten merges multiple option slices into one.
func Flatten(groups ...[]Option) []Option {
	var all []Option
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}
