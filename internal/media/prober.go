package media

import (
	"context"
	"log/slog"
	"math"
	"time"

	"ingesthub.systems/ingesthub/pkg/ffmpeg"
)

const probeTimeout = 30 * time.Second

// Info is the technical metadata extracted from one media file.
type Info struct {
	Kind            Kind
	Width           int
	Height          int
	DurationSeconds float64
	Codec           string
	Camera          string
	NeedsProxy      bool

	FPS             float64
	PixelFormat     string
	ColorSpace      string
	Bitrate         int64
	AudioCodec      string
	AudioSampleRate int
	AudioChannels   int
	ContainerFormat string
}

// Probe classifies a file and, for video and audio, runs ffprobe on it. A
// probe failure degrades to extension-only classification rather than
// failing the ingest of the file.
func Probe(ctx context.Context, path string) Info {
	kind := ClassifyExt(path)

	switch kind {
	case KindVideo, KindAudio:
		// probed below
	case KindOther:
		// Unknown extension: let ffprobe decide whether it is media at all.
		probed, err := probeFile(ctx, path)
		if err != nil {
			return Info{Kind: KindOther}
		}
		if probed.Kind == KindOther {
			return Info{Kind: KindOther}
		}
		return probed
	default:
		return Info{Kind: kind}
	}

	probed, err := probeFile(ctx, path)
	if err != nil {
		slog.Debug("ffprobe failed, keeping extension classification",
			"path", path, "error", err)
		return Info{Kind: kind}
	}
	probed.Kind = kind
	return probed
}

func probeFile(ctx context.Context, path string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	r, err := ffmpeg.Probe(ctx, path)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Kind:            KindOther,
		Width:           r.Width,
		Height:          r.Height,
		DurationSeconds: r.Duration,
		FPS:             roundFPS(r.FPS),
		PixelFormat:     r.PixelFormat,
		ColorSpace:      r.ColorSpace,
		Bitrate:         r.Bitrate,
		AudioCodec:      r.AudioCodec,
		AudioSampleRate: r.AudioSampleRate,
		AudioChannels:   r.AudioChannels,
		ContainerFormat: r.FormatName,
		Camera:          cameraFromProbe(r),
	}

	switch {
	case r.HasVideo():
		info.Kind = KindVideo
		info.Codec = r.VideoCodec
		info.NeedsProxy = NeedsProxy(r.VideoCodec)
	case r.HasAudio():
		info.Kind = KindAudio
		info.Codec = r.AudioCodec
	}

	return info, nil
}

func roundFPS(fps float64) float64 {
	return math.Round(fps*1000) / 1000
}

// cameraFromProbe assembles "Make Model" from container or stream tags.
func cameraFromProbe(r *ffmpeg.ProbeResult) string {
	tags := map[string]string{}
	collect := func(m any) {
		obj, ok := m.(map[string]any)
		if !ok {
			return
		}
		inner, ok := obj["tags"].(map[string]any)
		if !ok {
			return
		}
		for k, v := range inner {
			if s, ok := v.(string); ok {
				tags[k] = s
			}
		}
	}
	collect(r.RawJSON["format"])
	if streams, ok := r.RawJSON["streams"].([]any); ok {
		for _, s := range streams {
			collect(s)
		}
	}

	maker := firstTag(tags, "make", "com.apple.quicktime.make")
	model := firstTag(tags, "model", "com.apple.quicktime.model")
	switch {
	case maker != "" && model != "":
		return maker + " " + model
	case maker != "":
		return maker
	default:
		return model
	}
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}
