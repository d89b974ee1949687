package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"ingesthub.systems/ingesthub/internal/datasets"
	"ingesthub.systems/ingesthub/internal/db"
	"ingesthub.systems/ingesthub/internal/media"
)

// Store is the database surface the orchestrator needs. *db.Queries
// implements it.
type Store interface {
	GetProjectByID(ctx context.Context, id pgtype.UUID) (*db.Project, error)
	GetSubjectByName(ctx context.Context, projectID pgtype.UUID, name string) (*db.Subject, error)
	GetOrCreateSubject(ctx context.Context, projectID pgtype.UUID, name string) (*db.Subject, error)
	InsertPackage(ctx context.Context, params db.InsertPackageParams) (*db.Package, error)
	LinkPackageSubject(ctx context.Context, packageID, subjectID pgtype.UUID) error
	InsertAsset(ctx context.Context, params db.InsertAssetParams) (*db.Asset, error)
	DeleteAssetsByPackage(ctx context.Context, packageID pgtype.UUID) error
	MergePackageMetadata(ctx context.Context, packageID pgtype.UUID, meta db.PackageMetadata) error
	VFXPackageRollup(ctx context.Context, packageID pgtype.UUID) (*db.VFXRollup, error)
	FinalizePackage(ctx context.Context, packageID pgtype.UUID) (*db.Package, error)
	MarkPackageError(ctx context.Context, packageID pgtype.UUID, message string) error
	SetSubjectThumbnailIfEmpty(ctx context.Context, subjectID pgtype.UUID, url string) error
	SetSubjectDatasetDir(ctx context.Context, subjectID pgtype.UUID, dir string) error
}

// DatasetMapping assigns one subject of the run to a dataset directory.
type DatasetMapping struct {
	SubjectName string `json:"subject_name"`
	DatasetDir  string `json:"dataset_dir"`
	IsNew       bool   `json:"is_new"`
}

// SubjectInput is the reviewed per-subject file selection sent by the operator.
type SubjectInput struct {
	Name  string      `json:"name"`
	Files []FileEntry `json:"files"`
}

// Request is a reviewed analysis turned into an execution order.
type Request struct {
	ProjectID       string           `json:"project_id"`
	SourcePath      string           `json:"source_path"`
	PackageName     string           `json:"package_name"`
	PackageType     string           `json:"package_type"`
	Description     string           `json:"description"`
	Tags            []string         `json:"tags"`
	SkipProxies     bool             `json:"skip_proxies"`
	ProxyHeight     int              `json:"proxy_height"`
	Subjects        []SubjectInput   `json:"subjects"`
	DatasetMappings []DatasetMapping `json:"dataset_mappings"`
}

// selection pairs a selected file with its canonical subject name.
type selection struct {
	subject string
	file    FileEntry
}

// selectedFiles flattens the request to the selected files, with subject
// names canonicalized.
func (r *Request) selectedFiles() []selection {
	var out []selection
	for _, subj := range r.Subjects {
		name := datasets.CanonicalSubjectName(subj.Name)
		for _, f := range subj.Files {
			if f.Selected {
				out = append(out, selection{subject: name, file: f})
			}
		}
	}
	return out
}

var (
	ErrPathNotFound  = errors.New("source path not found")
	ErrNoSelection   = errors.New("no files selected for ingestion")
	ErrNameCollision = errors.New("package name already exists")
)

// Validate runs the pre-flight checks a handler should perform before
// streaming begins.
func (r *Request) Validate() error {
	info, err := os.Stat(r.SourcePath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPathNotFound, r.SourcePath)
	}
	if len(r.selectedFiles()) == 0 {
		return ErrNoSelection
	}
	if r.PackageName == "" {
		return fmt.Errorf("package name is required")
	}
	return nil
}

// Validate runs the request's own checks plus the media-root allow-list:
// when roots are configured, ingest sources outside them are rejected.
func (o *Orchestrator) Validate(req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	abs, err := filepath.Abs(req.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathNotFound, req.SourcePath)
	}
	if !media.UnderRoot(o.mediaRoots, abs) {
		return fmt.Errorf("source path is not under an allowed media root")
	}
	return nil
}

// Options configures an Orchestrator.
type Options struct {
	Store      Store
	Generator  media.Generator
	ProxyDir   string
	MediaRoots []string

	// Prober overrides technical metadata extraction, for tests. Defaults
	// to media.Probe.
	Prober func(ctx context.Context, path string) media.Info
}

// Orchestrator executes reviewed ingest requests: it creates subjects and
// packages, probes and registers every selected file, fans proxy generation
// out to the transcoder pool, and finalizes package state.
type Orchestrator struct {
	store      Store
	gen        media.Generator
	proxyDir   string
	mediaRoots []string
	probe      func(ctx context.Context, path string) media.Info
}

func NewOrchestrator(opts Options) *Orchestrator {
	probe := opts.Prober
	if probe == nil {
		probe = media.Probe
	}
	return &Orchestrator{
		store:      opts.Store,
		gen:        opts.Generator,
		proxyDir:   opts.ProxyDir,
		mediaRoots: opts.MediaRoots,
		probe:      probe,
	}
}

// pendingAsset carries one file through the pipeline stages.
type pendingAsset struct {
	sel      selection
	abs      string
	rel      string // path relative to the source dir, for derived files
	filename string
	missing  bool
	size     int64
	info     media.Info
	meta     db.AssetMetadata
	proxy    chan media.ProxyResult // closed by the generation goroutine; nil when skipped
}

// Execute runs the full ingest. Progress is reported on em, which receives
// exactly one terminal event. The context should outlive the client
// connection: a closed SSE stream must not abort a half-finished run.
func (o *Orchestrator) Execute(ctx context.Context, req Request, em *Emitter) {
	if err := o.execute(ctx, req, em); err != nil {
		slog.Error("ingest failed", "package", req.PackageName, "error", err)
		em.Close(Event{Type: "error", Message: err.Error()})
	}
}

func (o *Orchestrator) execute(ctx context.Context, req Request, em *Emitter) error {
	projectID, err := db.ParseUUID(req.ProjectID)
	if err != nil {
		return fmt.Errorf("invalid project id: %w", err)
	}
	if _, err := o.store.GetProjectByID(ctx, projectID); err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("project not found")
		}
		return err
	}

	selected := req.selectedFiles()
	total := len(selected)
	if total == 0 {
		return fmt.Errorf("no files selected for ingestion")
	}
	isVFX := req.PackageType == "vfx"

	// Subjects: get or create, remembering which ones are new to this run.
	subjectIDs := map[string]pgtype.UUID{}
	var subjectsCreated []string
	for _, sel := range selected {
		if _, ok := subjectIDs[sel.subject]; ok {
			continue
		}
		subj, err := o.store.GetSubjectByName(ctx, projectID, sel.subject)
		if err == pgx.ErrNoRows {
			subj, err = o.store.GetOrCreateSubject(ctx, projectID, sel.subject)
			if err == nil {
				subjectsCreated = append(subjectsCreated, sel.subject)
			}
		}
		if err != nil {
			return fmt.Errorf("subject %s: %w", sel.subject, err)
		}
		subjectIDs[sel.subject] = subj.ID
	}

	// Packages: committed in processing status before any file work, so an
	// interrupted run is visible to the startup recovery sweep.
	multiSubject := len(subjectIDs) > 1
	packageIDs := map[string]pgtype.UUID{}
	var createdPackages []pgtype.UUID

	insertPackage := func(subjectID pgtype.UUID, name string) (pgtype.UUID, error) {
		pkg, err := o.store.InsertPackage(ctx, db.InsertPackageParams{
			SubjectID:         subjectID,
			Name:              name,
			SourceDescription: req.Description,
			DiskPath:          req.SourcePath,
			PackageType:       db.PackageType(req.PackageType),
			Tags:              req.Tags,
			Metadata:          db.PackageMetadata{PackageType: req.PackageType},
		})
		if err != nil {
			if db.IsUniqueViolationErr(err) {
				return pgtype.UUID{}, fmt.Errorf("%w: %q", ErrNameCollision, name)
			}
			return pgtype.UUID{}, err
		}
		createdPackages = append(createdPackages, pkg.ID)
		return pkg.ID, nil
	}

	rollback := func(cause error) {
		for _, pkgID := range createdPackages {
			if err := o.store.DeleteAssetsByPackage(ctx, pkgID); err != nil {
				slog.Warn("rollback: delete assets failed", "error", err)
			}
			if err := o.store.MarkPackageError(ctx, pkgID, cause.Error()); err != nil {
				slog.Warn("rollback: mark error failed", "error", err)
			}
		}
	}

	if isVFX {
		// One package per subject keeps extraction batches reviewable
		// independently.
		for subject, subjectID := range subjectIDs {
			name := req.PackageName
			if multiSubject {
				name = req.PackageName + " — " + subject
			}
			pkgID, err := insertPackage(subjectID, name)
			if err != nil {
				rollback(err)
				return err
			}
			if err := o.store.LinkPackageSubject(ctx, pkgID, subjectID); err != nil {
				rollback(err)
				return err
			}
			packageIDs[subject] = pkgID
		}
	} else {
		first := selected[0].subject
		pkgID, err := insertPackage(subjectIDs[first], req.PackageName)
		if err != nil {
			rollback(err)
			return err
		}
		for subject, subjectID := range subjectIDs {
			if err := o.store.LinkPackageSubject(ctx, pkgID, subjectID); err != nil {
				rollback(err)
				return err
			}
			packageIDs[subject] = pkgID
		}
	}

	em.Lifecycle(Event{
		Type:       "setup",
		Subjects:   len(subjectIDs),
		Packages:   len(createdPackages),
		TotalFiles: total,
	})

	// Stage one: stat and probe every file, starting proxy generation in the
	// background. The transcoder's semaphore bounds parallelism. No events
	// fire here; progress is reported file by file in stage two so current
	// never moves backwards.
	proxyBase := filepath.Join(o.proxyDir, req.PackageName)
	pending := make([]*pendingAsset, 0, total)

	for _, sel := range selected {
		// The analyzer reports absolute paths, used verbatim for disk
		// access. Derived files key off the path relative to the source
		// dir, or the basename when the file sits outside it.
		abs := sel.file.OriginalPath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(req.SourcePath, abs)
		}
		rel, relErr := filepath.Rel(req.SourcePath, abs)
		if relErr != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(abs)
		}

		p := &pendingAsset{
			sel:      sel,
			abs:      abs,
			rel:      rel,
			filename: filepath.Base(abs),
		}
		pending = append(pending, p)

		stat, err := os.Stat(abs)
		if err != nil {
			p.missing = true
			continue
		}
		p.size = stat.Size()
		p.info = o.probe(ctx, abs)
		p.meta = assetMetadata(p.info)

		if isVFX && strings.EqualFold(filepath.Ext(abs), ".png") {
			if face, err := media.ReadFaceMeta(abs); err == nil {
				p.meta.Face = faceMetadata(face)
			}
		}

		outDir := filepath.Join(proxyBase, filepath.Dir(rel))
		if task := o.proxyTask(p.info, req); task != nil {
			ch := make(chan media.ProxyResult, 1)
			p.proxy = ch
			go func(src string) {
				defer close(ch)
				res, err := task(ctx, src, outDir)
				if err != nil {
					slog.Warn("media generation failed", "file", src, "error", err)
					return
				}
				ch <- res
			}(abs)
		}
	}

	// Stage two: walk the files in order, collecting generation results and
	// inserting asset rows. The per-file steps repeat the same current.
	assetCount := 0
	firstThumbBySubject := map[string]string{}

	for idx, p := range pending {
		cur := idx + 1
		if p.missing {
			em.Progress(Event{
				Current: cur, Total: total, File: p.filename,
				Step: "skipped", Message: "File not found",
			})
			continue
		}

		em.Progress(Event{Current: cur, Total: total, File: p.filename, Step: "probing"})

		var gen media.ProxyResult
		if p.proxy != nil {
			em.Progress(Event{Current: cur, Total: total, File: p.filename, Step: "proxy"})
			gen = <-p.proxy
		}
		if gen.ThumbnailPath != "" {
			if _, ok := firstThumbBySubject[p.sel.subject]; !ok {
				firstThumbBySubject[p.sel.subject] = gen.ThumbnailPath
			}
		}

		em.Progress(Event{Current: cur, Total: total, File: p.filename, Step: "inserting"})

		_, err := o.store.InsertAsset(ctx, db.InsertAssetParams{
			PackageID:       packageIDs[p.sel.subject],
			SubjectID:       subjectIDs[p.sel.subject],
			Filename:        p.rel,
			FileType:        fileType(p.info.Kind),
			AssetType:       p.sel.file.AssetType,
			MimeType:        media.MIMEType(p.abs),
			FileSizeBytes:   p.size,
			DiskPath:        p.abs,
			ProxyPath:       gen.ProxyPath,
			ThumbnailPath:   gen.ThumbnailPath,
			Width:           int4(p.info.Width),
			Height:          int4(p.info.Height),
			DurationSeconds: float8(p.info.DurationSeconds),
			Codec:           p.info.Codec,
			Camera:          camera(p.sel.file.Camera, p.info.Camera),
			Tags:            []string{p.sel.subject, p.sel.file.AssetType},
			Metadata:        p.meta,
		})
		if err != nil {
			rollback(err)
			return fmt.Errorf("insert asset %s: %w", p.filename, err)
		}
		assetCount++
	}

	em.Lifecycle(Event{
		Type:       "finalizing",
		Message:    "Updating package stats and committing...",
		TotalFiles: assetCount,
	})

	// Extraction packages get cross-asset aggregates merged into their
	// metadata before the totals are sealed.
	if isVFX {
		for _, pkgID := range createdPackages {
			rollup, err := o.store.VFXPackageRollup(ctx, pkgID)
			if err != nil {
				rollback(err)
				return fmt.Errorf("package rollup: %w", err)
			}
			if err := o.store.MergePackageMetadata(ctx, pkgID, rollup.Metadata()); err != nil {
				rollback(err)
				return err
			}
		}
	}

	for _, pkgID := range createdPackages {
		if _, err := o.store.FinalizePackage(ctx, pkgID); err != nil {
			rollback(err)
			return fmt.Errorf("finalize package: %w", err)
		}
	}

	// The first thumbnail of a run becomes the subject portrait, unless the
	// subject already has one.
	for subject, thumb := range firstThumbBySubject {
		url := media.URL(o.mediaRoots, thumb)
		if url == "" {
			url = thumb
		}
		if err := o.store.SetSubjectThumbnailIfEmpty(ctx, subjectIDs[subject], url); err != nil {
			slog.Warn("subject thumbnail update failed", "subject", subject, "error", err)
		}
	}

	o.linkDatasets(ctx, req, pending, subjectIDs, em)

	first := createdPackages[0]
	slog.Info("ingest complete",
		"packages", len(createdPackages),
		"assets", assetCount,
		"subjects_created", subjectsCreated,
	)
	em.Close(Event{
		Type:            "complete",
		PackageID:       db.UUIDString(first),
		FileCount:       assetCount,
		SubjectsCreated: subjectsCreated,
	})
	return nil
}

// linkDatasets mirrors the run's files into the mapped dataset directories.
// Everything here is best-effort: a broken dataset mount must not fail an
// otherwise finished ingest.
func (o *Orchestrator) linkDatasets(ctx context.Context, req Request, pending []*pendingAsset, subjectIDs map[string]pgtype.UUID, em *Emitter) {
	if len(req.DatasetMappings) == 0 {
		return
	}

	assetsBySubject := map[string][]datasets.LinkAsset{}
	for _, p := range pending {
		if p.missing {
			continue
		}
		assetsBySubject[p.sel.subject] = append(assetsBySubject[p.sel.subject], datasets.LinkAsset{
			SourcePath: p.abs,
			FileType:   string(fileType(p.info.Kind)),
			AssetType:  p.sel.file.AssetType,
		})
	}

	for _, dm := range req.DatasetMappings {
		name := datasets.CanonicalSubjectName(dm.SubjectName)
		subjAssets := assetsBySubject[name]
		if len(subjAssets) == 0 {
			continue
		}

		if dm.IsNew {
			if err := os.MkdirAll(dm.DatasetDir, 0o755); err != nil {
				slog.Warn("failed to create dataset dir", "dir", dm.DatasetDir, "error", err)
			}
		}

		res := datasets.CreateSymlinks(dm.DatasetDir, req.PackageName, subjAssets)
		em.Lifecycle(Event{
			Type:    "datasets",
			Subject: name,
			Created: res.Created,
			Skipped: res.Skipped,
			Errors:  len(res.Errors),
		})

		if id, ok := subjectIDs[name]; ok {
			if err := o.store.SetSubjectDatasetDir(ctx, id, dm.DatasetDir); err != nil {
				slog.Warn("dataset dir update failed", "subject", name, "error", err)
			}
		}
	}
}

// proxyTask picks the generation step for a file, or nil when the file kind
// gets no derived media.
func (o *Orchestrator) proxyTask(info media.Info, req Request) func(context.Context, string, string) (media.ProxyResult, error) {
	switch info.Kind {
	case media.KindVideo:
		if req.SkipProxies {
			return o.gen.VideoThumbnail
		}
		// Web-playable low-res sources serve as their own proxy.
		highRes := info.Width >= 1920 && info.Height >= 1080
		if info.NeedsProxy || highRes {
			return func(ctx context.Context, source, outDir string) (media.ProxyResult, error) {
				return o.gen.VideoProxy(ctx, source, outDir, req.ProxyHeight)
			}
		}
		return func(ctx context.Context, source, outDir string) (media.ProxyResult, error) {
			res, err := o.gen.VideoThumbnail(ctx, source, outDir)
			res.ProxyPath = source
			return res, err
		}
	case media.KindImage:
		return o.gen.ImageThumbnail
	default:
		return nil
	}
}

func assetMetadata(info media.Info) db.AssetMetadata {
	meta := db.AssetMetadata{
		PixelFormat:     info.PixelFormat,
		ColorSpace:      info.ColorSpace,
		Bitrate:         info.Bitrate,
		AudioCodec:      info.AudioCodec,
		Channels:        info.AudioChannels,
		ContainerFormat: info.ContainerFormat,
	}
	if info.FPS > 0 {
		fps := info.FPS
		meta.FPS = &fps
	}
	if info.AudioSampleRate > 0 {
		meta.AudioSampleRate = fmt.Sprintf("%d", info.AudioSampleRate)
	}
	return meta
}

func faceMetadata(face *media.FaceMeta) *db.FaceMetadata {
	return &db.FaceMetadata{
		FaceType:       face.FaceType,
		Yaw:            face.Yaw,
		Pitch:          face.Pitch,
		Roll:           face.Roll,
		Sharpness:      face.Sharpness,
		SourceFilename: face.SourceFilename,
		SourceFilepath: face.SourceFilepath,
		SourceWidth:    face.SourceWidth,
		SourceHeight:   face.SourceHeight,
	}
}

func fileType(kind media.Kind) db.FileType {
	switch kind {
	case media.KindVideo:
		return db.FileTypeVideo
	case media.KindImage:
		return db.FileTypeImage
	case media.KindAudio:
		return db.FileTypeAudio
	default:
		return db.FileTypeOther
	}
}

func camera(fromAnalysis, fromProbe string) string {
	if fromProbe != "" {
		return fromProbe
	}
	return fromAnalysis
}

func int4(v int) pgtype.Int4 {
	if v == 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(v), Valid: true}
}

func float8(v float64) pgtype.Float8 {
	if v == 0 {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: v, Valid: true}
}
