package datasets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LinkAsset describes one file to link into a dataset directory.
type LinkAsset struct {
	SourcePath string
	FileType   string // video, image, audio, other
	AssetType  string // raw, aligned, plate, grid, ...
}

// LinkResult summarizes a symlink pass. Errors are collected, never fatal,
// so one unwritable dataset cannot sink an ingest run.
type LinkResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// CreateSymlinks links each asset into the dataset directory under
//
//	{datasetDir}/media/external/from_client/{package}/{media_type}/{asset_type}/{filename}
//
// where media_type is "audio" for audio assets and "visuals" otherwise.
// Existing links pointing at the same source are skipped; stale links are
// replaced. Path components are sanitized so no link can land outside the
// dataset directory.
func CreateSymlinks(datasetDir, packageName string, assets []LinkAsset) LinkResult {
	var res LinkResult

	baseAbs, err := filepath.Abs(datasetDir)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", datasetDir, err))
		return res
	}
	safePkg := filepath.Base(packageName)
	base := filepath.Join(baseAbs, "media", "external", "from_client", safePkg)

	for _, asset := range assets {
		name := filepath.Base(asset.SourcePath)

		mediaType := "visuals"
		if asset.FileType == "audio" || isAudioExt(filepath.Ext(name)) {
			mediaType = "audio"
		}
		assetType := asset.AssetType
		if assetType == "" {
			assetType = "raw"
		}
		safeType := filepath.Base(assetType)

		target := filepath.Join(base, mediaType, safeType, name)
		if !strings.HasPrefix(target, base+string(filepath.Separator)) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: path escapes dataset directory", name))
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		if existing, err := os.Readlink(target); err == nil {
			if existing == asset.SourcePath {
				res.Skipped++
				continue
			}
			// Stale link to a different source
			if err := os.Remove(target); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
				continue
			}
		}

		if err := os.Symlink(asset.SourcePath, target); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			slog.Warn("symlink failed", "asset", name, "error", err)
			continue
		}
		res.Created++
	}

	slog.Info("dataset symlinks",
		"dataset", filepath.Base(datasetDir),
		"package", packageName,
		"created", res.Created,
		"skipped", res.Skipped,
		"errors", len(res.Errors),
	)
	return res
}

func isAudioExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".wav", ".mp3", ".aac", ".flac", ".ogg", ".m4a", ".aiff", ".wma":
		return true
	}
	return false
}
