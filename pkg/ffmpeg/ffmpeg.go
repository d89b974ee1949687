// Package ffmpeg provides a composable API for building and executing ffmpeg commands.
package ffmpeg

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Command represents an ffmpeg command being built.
type Command struct {
	input     string
	output    string
	preInput  []string // args before -i (like -ss for input seeking)
	postInput []string // args after -i
	filters   []string // collected -vf filters
}

// Option modifies a Command. Options are composable and order-independent
// (ffmpeg will receive args in correct order regardless of option order).
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y"}

	args = append(args, c.preInput...)
	args = append(args, "-i", c.input)
	args = append(args, c.postInput...)

	if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}

	// Auto-apply faststart for MP4 family outputs
	ext := strings.ToLower(filepath.Ext(c.output))
	if ext == ".mp4" || ext == ".m4a" || ext == ".mov" {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, c.output)
	return args
}

// Run executes the ffmpeg command.
func (c *Command) Run(ctx context.Context) error {
	return run(ctx, c.Build())
}

// RunCapture executes the ffmpeg command and returns both stderr logs and any error.
func (c *Command) RunCapture(ctx context.Context) RunResult {
	return runCapture(ctx, c.Build())
}

// Run executes an ffmpeg command with the given options.
func Run(ctx context.Context, input, output string, opts ...Option) error {
	return NewCommand(input, output, opts...).Run(ctx)
}

// RunCapture executes an ffmpeg command and returns both the stderr logs and any error.
func RunCapture(ctx context.Context, input, output string, opts ...Option) RunResult {
	return NewCommand(input, output, opts...).RunCapture(ctx)
}

// --- Seeking Options ---

// Seek sets the start position (input seeking, before -i).
func Seek(start time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append(cmd.preInput, "-ss", formatDuration(start))
	})
}

// Duration sets the output duration.
func Duration(d time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-t", formatDuration(d))
	})
}

// --- Video Codec Options ---

// VideoCodec sets the video codec (-c:v).
func VideoCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:v", codec)
	})
}

// CRF sets the constant rate factor.
func CRF(value int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-crf", itoa(value))
	})
}

// Preset sets the encoding preset (ultrafast, fast, medium, etc.).
func Preset(name string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-preset", name)
	})
}

// PixelFormat sets the pixel format (-pix_fmt).
func PixelFormat(fmt string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-pix_fmt", fmt)
	})
}

// --- Audio Codec Options ---

// AudioCodec sets the audio codec (-c:a).
func AudioCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:a", codec)
	})
}

// AudioBitrate sets the audio bitrate (-b:a).
func AudioBitrate(bitrate string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-b:a", bitrate)
	})
}

// --- Filter Options ---

// Filter adds a video filter to the filter chain.
func Filter(f string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.filters = append(cmd.filters, f)
	})
}

// --- Output Options ---

// Frames sets the number of frames to output (-frames:v).
func Frames(n int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-frames:v", itoa(n))
	})
}

// Quality sets the output quality for images (-q:v).
func Quality(q int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-q:v", itoa(q))
	})
}

// --- Utility ---

func formatDuration(d time.Duration) string {
	// Format as seconds with millisecond precision for ffmpeg
	secs := d.Seconds()
	return strconv.FormatFloat(secs, 'f', 3, 64)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
