package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ingesthub.systems/ingesthub/pkg/ffmpeg"
)

const (
	proxyTimeout     = 10 * time.Minute
	thumbnailTimeout = 30 * time.Second
)

// ProxyResult holds the derived file paths produced for one asset. Empty
// paths mean the step was skipped or failed.
type ProxyResult struct {
	ProxyPath     string
	ThumbnailPath string
}

// Generator produces web-playable proxies and thumbnails for assets. outDir
// is created on demand; derived files are named {stem}_proxy.mp4 and
// {stem}_thumb.jpg and reused when they already exist.
type Generator interface {
	// VideoProxy renders a capped-height MP4 proxy and a poster thumbnail.
	// maxHeight <= 0 falls back to the generator's configured default.
	VideoProxy(ctx context.Context, source, outDir string, maxHeight int) (ProxyResult, error)
	// VideoThumbnail grabs only the poster frame, for runs that skip proxies.
	VideoThumbnail(ctx context.Context, source, outDir string) (ProxyResult, error)
	// ImageThumbnail renders a small preview of a still image.
	ImageThumbnail(ctx context.Context, source, outDir string) (ProxyResult, error)
}

// Transcoder is the ffmpeg-backed Generator. The semaphore bounds how many
// ffmpeg processes run at once across all concurrent ingest runs.
type Transcoder struct {
	MaxHeight int
	sem       chan struct{}
}

// NewTranscoder creates a Transcoder running at most workers ffmpeg
// processes concurrently.
func NewTranscoder(maxHeight, workers int) *Transcoder {
	if maxHeight <= 0 {
		maxHeight = 720
	}
	if workers <= 0 {
		workers = 4
	}
	return &Transcoder{
		MaxHeight: maxHeight,
		sem:       make(chan struct{}, workers),
	}
}

func (t *Transcoder) acquire(ctx context.Context) error {
	select {
	case t.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transcoder) release() {
	<-t.sem
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (t *Transcoder) VideoProxy(ctx context.Context, source, outDir string, maxHeight int) (ProxyResult, error) {
	if maxHeight <= 0 {
		maxHeight = t.MaxHeight
	}
	if err := t.acquire(ctx); err != nil {
		return ProxyResult{}, err
	}
	defer t.release()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ProxyResult{}, fmt.Errorf("create proxy dir: %w", err)
	}

	var res ProxyResult
	proxyPath := filepath.Join(outDir, stem(source)+"_proxy.mp4")
	if _, err := os.Stat(proxyPath); err == nil {
		// Already rendered by a previous run.
		res.ProxyPath = proxyPath
	} else {
		pctx, cancel := context.WithTimeout(ctx, proxyTimeout)
		out := ffmpeg.RunCapture(pctx, source, proxyPath, ffmpeg.Flatten(
			ffmpeg.PresetProxy264(maxHeight),
			ffmpeg.PresetProxyAAC(),
		)...)
		cancel()
		if out.Err != nil {
			os.Remove(proxyPath)
			return ProxyResult{}, fmt.Errorf("proxy %s: %w", filepath.Base(source), out.Err)
		}
		res.ProxyPath = proxyPath
	}

	thumb, err := t.videoThumbnailLocked(ctx, source, outDir)
	if err != nil {
		// A missing poster frame is not worth failing the asset over.
		slog.Warn("thumbnail generation failed", "source", source, "error", err)
		return res, nil
	}
	res.ThumbnailPath = thumb
	return res, nil
}

func (t *Transcoder) VideoThumbnail(ctx context.Context, source, outDir string) (ProxyResult, error) {
	if err := t.acquire(ctx); err != nil {
		return ProxyResult{}, err
	}
	defer t.release()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ProxyResult{}, fmt.Errorf("create proxy dir: %w", err)
	}

	thumb, err := t.videoThumbnailLocked(ctx, source, outDir)
	if err != nil {
		return ProxyResult{}, err
	}
	return ProxyResult{ThumbnailPath: thumb}, nil
}

// videoThumbnailLocked assumes the semaphore is already held.
func (t *Transcoder) videoThumbnailLocked(ctx context.Context, source, outDir string) (string, error) {
	thumbPath := filepath.Join(outDir, stem(source)+"_thumb.jpg")
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	tctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()
	out := ffmpeg.ExtractThumbnailCapture(tctx, source, thumbPath, nil)
	if out.Err != nil {
		os.Remove(thumbPath)
		return "", fmt.Errorf("thumbnail %s: %w", filepath.Base(source), out.Err)
	}
	return thumbPath, nil
}

func (t *Transcoder) ImageThumbnail(ctx context.Context, source, outDir string) (ProxyResult, error) {
	if err := t.acquire(ctx); err != nil {
		return ProxyResult{}, err
	}
	defer t.release()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ProxyResult{}, fmt.Errorf("create proxy dir: %w", err)
	}

	thumbPath := filepath.Join(outDir, stem(source)+"_thumb.jpg")
	if _, err := os.Stat(thumbPath); err == nil {
		return ProxyResult{ThumbnailPath: thumbPath}, nil
	}

	tctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()
	out := ffmpeg.ScaleImageCapture(tctx, source, thumbPath, 480)
	if out.Err != nil {
		os.Remove(thumbPath)
		return ProxyResult{}, fmt.Errorf("image thumbnail %s: %w", filepath.Base(source), out.Err)
	}
	return ProxyResult{ThumbnailPath: thumbPath}, nil
}
