// Package media classifies files on disk and extracts technical metadata
// from them via ffprobe.
package media

import (
	"mime"
	"path/filepath"
	"strings"
)

// Kind is the coarse media class of a file.
type Kind string

const (
	KindVideo   Kind = "video"
	KindImage   Kind = "image"
	KindAudio   Kind = "audio"
	KindSidecar Kind = "sidecar"
	KindOther   Kind = "other"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".mxf": true, ".ts": true, ".mts": true, ".m2ts": true, ".3gp": true,
	".ogv": true,
	".r3d": true, // RED raw
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tiff": true, ".tif": true,
	".bmp": true, ".webp": true, ".exr": true, ".dpx": true, ".hdr": true,
	".gif": true, ".heic": true, ".heif": true,
	".raw": true, ".cr2": true, ".cr3": true, ".nef": true, ".arw": true,
	".dng": true, // RAW camera formats
}

var audioExtensions = map[string]bool{
	".wav": true, ".aiff": true, ".aif": true, ".mp3": true, ".flac": true,
	".ogg": true, ".m4a": true,
}

var sidecarExtensions = map[string]bool{
	".xml": true, ".json": true, ".srt": true, ".edl": true, ".cdl": true,
}

// Codecs that browsers can't play natively, so the asset needs a proxy.
var nonWebVideoCodecs = map[string]bool{
	"prores": true, "dnxhd": true, "dnxhr": true, "cfhd": true,
	"v210": true, "rawvideo": true, "ffv1": true, "huffyuv": true,
	"mjpeg": true, "mpeg2video": true, "r210": true,
}

// ClassifyExt classifies a path by extension alone.
func ClassifyExt(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExtensions[ext]:
		return KindVideo
	case imageExtensions[ext]:
		return KindImage
	case audioExtensions[ext]:
		return KindAudio
	case sidecarExtensions[ext]:
		return KindSidecar
	default:
		return KindOther
	}
}

// NeedsProxy reports whether a video codec requires re-encoding for web playback.
func NeedsProxy(codec string) bool {
	return nonWebVideoCodecs[strings.ToLower(codec)]
}

// MIMEType guesses the MIME type of a path from its extension. Returns ""
// when the extension is unknown.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	// A few pro formats the stdlib table misses
	switch ext {
	case ".mxf":
		return "application/mxf"
	case ".exr":
		return "image/x-exr"
	case ".dpx":
		return "image/x-dpx"
	case ".r3d":
		return "video/x-red-r3d"
	}
	return mime.TypeByExtension(ext)
}
