// Package ingest implements package analysis and the ingest pipeline that
// turns a delivery directory into catalogued subjects, packages, and assets.
package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"ingesthub.systems/ingesthub/internal/media"
)

// FileEntry is one analyzed file inside a delivery.
type FileEntry struct {
	OriginalPath string `json:"original_path"`
	FileType     string `json:"file_type"`
	SizeBytes    int64  `json:"size_bytes"`
	Subject      string `json:"subject"`
	Camera       string `json:"camera,omitempty"`
	AssetType    string `json:"asset_type"`
	Selected     bool   `json:"selected"`
}

// SubjectFiles groups a delivery's files by detected subject.
type SubjectFiles struct {
	Name           string      `json:"name"`
	FileCount      int         `json:"file_count"`
	TotalSizeBytes int64       `json:"total_size_bytes"`
	Files          []FileEntry `json:"files"`
}

// Analysis is the proposal produced by analyzing a delivery directory. The
// operator reviews and edits it before execution.
type Analysis struct {
	SourcePath     string         `json:"source_path"`
	PackageType    string         `json:"package_type"`
	TotalFiles     int            `json:"total_files"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Subjects       []SubjectFiles `json:"subjects"`
}

// Classifier analyzes delivery directories. For extraction packages it uses
// filename structure alone; for raw footage it consults the assist client
// when one is configured.
type Classifier struct {
	Assist *Assist // nil disables assisted normalization
}

// vfxFrameRe matches structured extraction frames like face_000123_0.png.
var vfxFrameRe = regexp.MustCompile(`^(?i)\w+_\d{3,}_\d+\.png$`)

// Analyze scans a directory and returns an ingest proposal, auto-detecting
// the package layout.
func (c *Classifier) Analyze(ctx context.Context, sourcePath string) (*Analysis, error) {
	source, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, err
	}

	pkgType := DetectPackageType(source)
	slog.Info("detected package type", "type", pkgType, "source", source)

	var analysis *Analysis
	if pkgType == "vfx" {
		analysis, err = c.analyzeVFX(source)
	} else {
		analysis, err = c.analyzeFootage(ctx, source)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("analysis complete",
		"type", analysis.PackageType,
		"subjects", len(analysis.Subjects),
		"files", analysis.TotalFiles,
		"size", humanize.Bytes(uint64(analysis.TotalSizeBytes)),
	)
	return analysis, nil
}

// DetectPackageType decides between an extraction directory ("vfx") and raw
// footage ("atman"). Extraction needs two or more indicators: a config.json
// in the directory or its parent, a plate/aligned/visuals subdirectory, a
// 90%+ PNG ratio, or 80%+ structured frame filenames.
func DetectPackageType(source string) string {
	indicators := 0

	if fileExists(filepath.Join(source, "config.json")) ||
		fileExists(filepath.Join(filepath.Dir(source), "config.json")) {
		indicators++
	}

	baseName := filepath.Base(source)
	for _, name := range []string{"plate", "aligned", "visuals"} {
		if dirExists(filepath.Join(source, name)) || baseName == name {
			indicators++
			break
		}
	}

	// Sample up to 200 files for the ratio checks
	var sample []string
	walkFiles(source, func(rel string, _ fs.DirEntry) bool {
		sample = append(sample, rel)
		return len(sample) < 200
	})

	if len(sample) > 0 {
		pngs := 0
		framePattern := 0
		for _, rel := range sample {
			if strings.EqualFold(filepath.Ext(rel), ".png") {
				pngs++
			}
			if vfxFrameRe.MatchString(filepath.Base(rel)) {
				framePattern++
			}
		}
		if float64(pngs)/float64(len(sample)) >= 0.9 {
			indicators++
		}
		if float64(framePattern)/float64(len(sample)) >= 0.8 {
			indicators++
		}
	}

	if indicators >= 2 {
		return "vfx"
	}
	return "atman"
}

// analyzeVFX groups extraction frames by the identity encoded in the
// directory layout. No assist call is needed: the structure is mechanical.
func (c *Classifier) analyzeVFX(source string) (*Analysis, error) {
	bySubject := map[string][]FileEntry{}
	var totalSize int64

	err := eachFile(source, func(rel string, info fs.FileInfo) {
		kind := media.ClassifyExt(rel)
		if kind != media.KindImage && kind != media.KindVideo && kind != media.KindAudio {
			return
		}

		size := info.Size()
		totalSize += size
		subject := identityFromPath(filepath.Join(source, rel), source)

		assetType := "aligned"
		for _, part := range strings.Split(strings.ToLower(rel), string(filepath.Separator)) {
			if part == "grid" || part == "grids" {
				assetType = "grid"
				break
			}
			if part == "plate" {
				assetType = "plate"
				break
			}
		}

		bySubject[subject] = append(bySubject[subject], FileEntry{
			OriginalPath: rel,
			FileType:     string(kind),
			SizeBytes:    size,
			Subject:      subject,
			Camera:       "cam_a",
			AssetType:    assetType,
			Selected:     true,
		})
	})
	if err != nil {
		return nil, err
	}

	return buildAnalysis(source, "vfx", totalSize, bySubject), nil
}

// analyzeFootage analyzes a raw footage delivery. With an assist client the
// directory structure is normalized by the model; without one everything
// lands on a single "shared" subject for the operator to reassign.
func (c *Classifier) analyzeFootage(ctx context.Context, source string) (*Analysis, error) {
	facts, err := scanDirectory(source)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return &Analysis{SourcePath: source, PackageType: "atman", Subjects: []SubjectFiles{}}, nil
	}

	lookup := map[string]targetParts{}
	if c.Assist != nil {
		manifest, err := c.Assist.Normalize(ctx, filepath.Base(source), facts)
		if err != nil {
			slog.Warn("assisted normalization failed, falling back to shared subject", "error", err)
		}
		for _, entry := range manifest {
			lookup[entry.SourcePath] = parseTargetPath(entry.TargetPath)
		}
		lookup = validateSubjectAssignments(lookup, facts)
		lookup = matchSharedByFilename(lookup, facts)
	}

	bySubject := map[string][]FileEntry{}
	var totalSize int64

	for _, f := range facts {
		parsed, ok := lookup[f.Path]
		if !ok {
			parsed = targetParts{Subject: "shared", Camera: "cam_a", AssetType: "raw"}
		}

		totalSize += f.SizeBytes
		bySubject[parsed.Subject] = append(bySubject[parsed.Subject], FileEntry{
			OriginalPath: f.Path,
			FileType:     f.FileType,
			SizeBytes:    f.SizeBytes,
			Subject:      parsed.Subject,
			Camera:       parsed.Camera,
			AssetType:    parsed.AssetType,
			Selected:     true,
		})
	}

	return buildAnalysis(source, "atman", totalSize, bySubject), nil
}

func buildAnalysis(source, pkgType string, totalSize int64, bySubject map[string][]FileEntry) *Analysis {
	names := make([]string, 0, len(bySubject))
	for name := range bySubject {
		names = append(names, name)
	}
	sort.Strings(names)

	a := &Analysis{
		SourcePath:     source,
		PackageType:    pkgType,
		TotalSizeBytes: totalSize,
		Subjects:       make([]SubjectFiles, 0, len(names)),
	}
	for _, name := range names {
		files := bySubject[name]
		var size int64
		for _, f := range files {
			size += f.SizeBytes
		}
		a.TotalFiles += len(files)
		a.Subjects = append(a.Subjects, SubjectFiles{
			Name:           name,
			FileCount:      len(files),
			TotalSizeBytes: size,
			Files:          files,
		})
	}
	return a
}

// identityFromPath extracts the subject name encoded in an extraction path.
// A "/datasets/" marker wins; otherwise the first non-structural relative
// component is used.
func identityFromPath(path, baseDir string) string {
	const marker = string(filepath.Separator) + "datasets" + string(filepath.Separator)
	if idx := strings.Index(path, marker); idx >= 0 {
		after := path[idx+len(marker):]
		first, _, _ := strings.Cut(after, string(filepath.Separator))
		// Double-underscore format: "dragon__paul_stanley" carries the
		// identity after the separator.
		if _, ident, found := strings.Cut(first, "__"); found {
			first = ident
		}
		if first != "" {
			return first
		}
		return "unknown"
	}

	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return "unknown"
	}
	skip := map[string]bool{
		"media": true, "external": true, "aligned": true,
		"from_client": true, "visuals": true, "plate": true,
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if !skip[strings.ToLower(part)] && !strings.HasPrefix(part, ".") {
			return part
		}
	}
	return "unknown"
}

// FileFact is the per-file record sent to the assist model.
type FileFact struct {
	Path     string   `json:"path"`
	Filename string   `json:"filename"`
	Ext      string   `json:"ext"`
	IsVideo  bool     `json:"is_video"`
	IsAudio  bool     `json:"is_audio"`
	SizeMB   float64  `json:"size_mb"`
	Tokens   []string `json:"tokens"`

	FileType  string `json:"-"`
	SizeBytes int64  `json:"-"`
}

var tokenSplitRe = regexp.MustCompile(`[_\-.\s]+`)

func scanDirectory(source string) ([]FileFact, error) {
	var facts []FileFact
	err := eachFile(source, func(rel string, info fs.FileInfo) {
		kind := media.ClassifyExt(rel)
		if kind != media.KindVideo && kind != media.KindImage && kind != media.KindAudio {
			return
		}
		name := filepath.Base(rel)
		ext := strings.ToLower(filepath.Ext(name))
		facts = append(facts, FileFact{
			Path:      filepath.ToSlash(rel),
			Filename:  name,
			Ext:       ext,
			IsVideo:   kind == media.KindVideo,
			IsAudio:   kind == media.KindAudio,
			SizeMB:    float64(info.Size()) / (1024 * 1024),
			Tokens:    tokenSplitRe.Split(strings.TrimSuffix(name, ext), -1),
			FileType:  string(kind),
			SizeBytes: info.Size(),
		})
	})
	return facts, err
}

// eachFile walks source in sorted order, skipping hidden path components,
// and calls fn with the relative path of each regular file.
func eachFile(source string, fn func(rel string, info fs.FileInfo)) error {
	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != source {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return nil
		}
		fn(rel, info)
		return nil
	})
}

// walkFiles is the bounded variant used for sampling: fn returns false to stop.
func walkFiles(source string, fn func(rel string, d fs.DirEntry) bool) {
	stop := filepath.SkipAll
	_ = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != source {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return nil
		}
		if !fn(rel, d) {
			return stop
		}
		return nil
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
