package ingest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingesthub.systems/ingesthub/internal/db"
	"ingesthub.systems/ingesthub/internal/media"
)

// memStore keeps the catalog in maps so orchestrator runs can be asserted
// without a database.
type memStore struct {
	mu       sync.Mutex
	project  db.Project
	subjects map[string]*db.Subject
	packages map[string]*db.Package
	assets   []db.Asset
	links    map[string][]string

	failAsset bool
}

func newMemStore() *memStore {
	return &memStore{
		project:  db.Project{ID: db.NewUUID(), Name: "Test Project"},
		subjects: map[string]*db.Subject{},
		packages: map[string]*db.Package{},
		links:    map[string][]string{},
	}
}

func (s *memStore) projectID() string { return db.UUIDString(s.project.ID) }

func (s *memStore) GetProjectByID(_ context.Context, id pgtype.UUID) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db.UUIDString(id) != db.UUIDString(s.project.ID) {
		return nil, pgx.ErrNoRows
	}
	p := s.project
	return &p, nil
}

func (s *memStore) GetSubjectByName(_ context.Context, projectID pgtype.UUID, name string) (*db.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subj, ok := s.subjects[name]; ok {
		return subj, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *memStore) GetOrCreateSubject(_ context.Context, projectID pgtype.UUID, name string) (*db.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subj, ok := s.subjects[name]; ok {
		return subj, nil
	}
	subj := &db.Subject{ID: db.NewUUID(), ProjectID: projectID, Name: name}
	s.subjects[name] = subj
	return subj, nil
}

func (s *memStore) InsertPackage(_ context.Context, params db.InsertPackageParams) (*db.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg := &db.Package{
		ID:                db.NewUUID(),
		SubjectID:         params.SubjectID,
		Name:              params.Name,
		SourceDescription: params.SourceDescription,
		DiskPath:          pgtype.Text{String: params.DiskPath, Valid: true},
		Status:            db.PackageStatusProcessing,
		PackageType:       params.PackageType,
		Tags:              params.Tags,
		Metadata:          params.Metadata,
	}
	s.packages[db.UUIDString(pkg.ID)] = pkg
	return pkg, nil
}

func (s *memStore) LinkPackageSubject(_ context.Context, packageID, subjectID pgtype.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := db.UUIDString(packageID)
	s.links[key] = append(s.links[key], db.UUIDString(subjectID))
	return nil
}

func (s *memStore) InsertAsset(_ context.Context, params db.InsertAssetParams) (*db.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAsset {
		return nil, fmt.Errorf("disk full")
	}
	asset := db.Asset{
		ID:            db.NewUUID(),
		PackageID:     params.PackageID,
		SubjectID:     params.SubjectID,
		Filename:      params.Filename,
		FileType:      params.FileType,
		AssetType:     params.AssetType,
		FileSizeBytes: pgtype.Int8{Int64: params.FileSizeBytes, Valid: true},
		DiskPath:      params.DiskPath,
		ProxyPath:     textOrNull(params.ProxyPath),
		ThumbnailPath: textOrNull(params.ThumbnailPath),
		Width:         params.Width,
		Height:        params.Height,
		Tags:          params.Tags,
		Metadata:      params.Metadata,
	}
	s.assets = append(s.assets, asset)
	return &asset, nil
}

func (s *memStore) DeleteAssetsByPackage(_ context.Context, packageID pgtype.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := db.UUIDString(packageID)
	kept := s.assets[:0]
	for _, a := range s.assets {
		if db.UUIDString(a.PackageID) != key {
			kept = append(kept, a)
		}
	}
	s.assets = kept
	return nil
}

func (s *memStore) MergePackageMetadata(_ context.Context, packageID pgtype.UUID, meta db.PackageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg := s.packages[db.UUIDString(packageID)]
	if meta.FaceTypes != nil {
		pkg.Metadata.FaceTypes = meta.FaceTypes
	}
	if meta.AlignedCount > 0 {
		pkg.Metadata.AlignedCount = meta.AlignedCount
	}
	if meta.SourceWidth > 0 {
		pkg.Metadata.SourceWidth = meta.SourceWidth
		pkg.Metadata.SourceHeight = meta.SourceHeight
	}
	if meta.SourceVideoPath != "" {
		pkg.Metadata.SourceVideoPath = meta.SourceVideoPath
		pkg.Metadata.SourceVideoFilename = meta.SourceVideoFilename
	}
	if meta.PoseData != nil {
		pkg.Metadata.PoseData = meta.PoseData
	}
	return nil
}

func (s *memStore) VFXPackageRollup(_ context.Context, packageID pgtype.UUID) (*db.VFXRollup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := db.UUIDString(packageID)
	rollup := &db.VFXRollup{}
	seenTypes := map[string]bool{}
	bins := map[[2]int]int{}

	for _, a := range s.assets {
		if db.UUIDString(a.PackageID) != key {
			continue
		}
		if a.AssetType == "aligned" {
			rollup.AlignedCount++
		}
		face := a.Metadata.Face
		if face == nil {
			continue
		}
		if face.FaceType != "" && !seenTypes[face.FaceType] {
			seenTypes[face.FaceType] = true
			rollup.FaceTypes = append(rollup.FaceTypes, face.FaceType)
		}
		if face.SourceWidth > rollup.SourceWidth {
			rollup.SourceWidth = face.SourceWidth
			rollup.SourceHeight = face.SourceHeight
		}
		if rollup.SourceVideoPath == "" && face.SourceFilepath != "" {
			rollup.SourceVideoPath = face.SourceFilepath
			rollup.SourceVideoFilename = face.SourceFilename
		}
		if face.Yaw != nil && face.Pitch != nil {
			y := int(math.Floor(*face.Yaw/10)) * 10
			p := int(math.Floor(*face.Pitch/10)) * 10
			bins[[2]int{y, p}]++
		}
	}

	sort.Strings(rollup.FaceTypes)
	for bin, n := range bins {
		rollup.PoseData = append(rollup.PoseData, db.PoseBin{Yaw: bin[0], Pitch: bin[1], Count: n})
	}
	return rollup, nil
}

func (s *memStore) FinalizePackage(_ context.Context, packageID pgtype.UUID) (*db.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := db.UUIDString(packageID)
	pkg := s.packages[key]
	pkg.FileCount = 0
	pkg.TotalSizeBytes = 0
	for _, a := range s.assets {
		if db.UUIDString(a.PackageID) == key {
			pkg.FileCount++
			pkg.TotalSizeBytes += a.FileSizeBytes.Int64
		}
	}
	pkg.Status = db.PackageStatusReady
	return pkg, nil
}

func (s *memStore) MarkPackageError(_ context.Context, packageID pgtype.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg := s.packages[db.UUIDString(packageID)]
	pkg.Status = db.PackageStatusError
	pkg.Metadata.Error = message
	return nil
}

func (s *memStore) SetSubjectThumbnailIfEmpty(_ context.Context, subjectID pgtype.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subj := range s.subjects {
		if db.UUIDString(subj.ID) == db.UUIDString(subjectID) && !subj.ThumbnailURL.Valid {
			subj.ThumbnailURL = pgtype.Text{String: url, Valid: true}
		}
	}
	return nil
}

func (s *memStore) SetSubjectDatasetDir(_ context.Context, subjectID pgtype.UUID, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subj := range s.subjects {
		if db.UUIDString(subj.ID) == db.UUIDString(subjectID) {
			subj.DatasetDir = pgtype.Text{String: dir, Valid: true}
		}
	}
	return nil
}

func (s *memStore) RecoverStuckPackages(_ context.Context) ([]db.StuckPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stuck []db.StuckPackage
	for _, pkg := range s.packages {
		if pkg.Status == db.PackageStatusProcessing {
			pkg.Status = db.PackageStatusError
			pkg.Metadata.Error = "interrupted by server restart"
			stuck = append(stuck, db.StuckPackage{ID: pkg.ID, Name: pkg.Name})
		}
	}
	return stuck, nil
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// fakeGen fabricates derived-media paths without running ffmpeg.
type fakeGen struct {
	mu         sync.Mutex
	proxies    int
	thumbs     int
	lastHeight int
}

func testStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (g *fakeGen) VideoProxy(_ context.Context, source, outDir string, maxHeight int) (media.ProxyResult, error) {
	g.mu.Lock()
	g.proxies++
	g.thumbs++
	g.lastHeight = maxHeight
	g.mu.Unlock()
	return media.ProxyResult{
		ProxyPath:     filepath.Join(outDir, testStem(source)+"_proxy.mp4"),
		ThumbnailPath: filepath.Join(outDir, testStem(source)+"_thumb.jpg"),
	}, nil
}

func (g *fakeGen) VideoThumbnail(_ context.Context, source, outDir string) (media.ProxyResult, error) {
	g.mu.Lock()
	g.thumbs++
	g.mu.Unlock()
	return media.ProxyResult{ThumbnailPath: filepath.Join(outDir, testStem(source)+"_thumb.jpg")}, nil
}

func (g *fakeGen) ImageThumbnail(_ context.Context, source, outDir string) (media.ProxyResult, error) {
	g.mu.Lock()
	g.thumbs++
	g.mu.Unlock()
	return media.ProxyResult{ThumbnailPath: filepath.Join(outDir, testStem(source)+"_thumb.jpg")}, nil
}

func fakeProbe(_ context.Context, path string) media.Info {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mov":
		return media.Info{Kind: media.KindVideo, Width: 3840, Height: 2160, DurationSeconds: 12.5, Codec: "prores", NeedsProxy: true}
	case ".mp4":
		return media.Info{Kind: media.KindVideo, Width: 1280, Height: 720, DurationSeconds: 3, Codec: "h264"}
	case ".png", ".jpg":
		return media.Info{Kind: media.KindImage, Width: 512, Height: 512}
	case ".wav":
		return media.Info{Kind: media.KindAudio, DurationSeconds: 30, Codec: "pcm_s16le"}
	default:
		return media.Info{Kind: media.KindOther}
	}
}

func pngChunk(typ string, data []byte) []byte {
	buf := make([]byte, 0, len(data)+12)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf = append(buf, length[:]...)
	buf = append(buf, typ...)
	buf = append(buf, data...)
	buf = append(buf, 0, 0, 0, 0) // CRC is not verified on read
	return buf
}

func writeFacePNG(t *testing.T, path string, header map[string]any) {
	t.Helper()
	js, err := json.Marshal(header)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	b := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	b = append(b, pngChunk("tEXt", append([]byte("dfl_header\x00"), js...))...)
	b = append(b, pngChunk("IEND", nil)...)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func newTestOrchestrator(store Store, proxyDir string) (*Orchestrator, *fakeGen) {
	gen := &fakeGen{}
	o := NewOrchestrator(Options{
		Store:      store,
		Generator:  gen,
		ProxyDir:   proxyDir,
		MediaRoots: []string{proxyDir},
		Prober:     fakeProbe,
	})
	return o, gen
}

func runIngest(t *testing.T, o *Orchestrator, req Request) []Event {
	t.Helper()
	em := NewEmitter(256)
	o.Execute(context.Background(), req, em)
	var events []Event
	for ev := range em.Events() {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	require.True(t, events[len(events)-1].Terminal(), "stream must end with a terminal event")
	return events
}

func eventOfType(events []Event, typ string) *Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func TestExecuteFootage(t *testing.T) {
	source := t.TempDir()
	proxyDir := t.TempDir()
	datasetRoot := t.TempDir()
	writeFixture(t, source, "maya/clip001.mov")
	writeFixture(t, source, "shared/lowres.mp4")
	writeFixture(t, source, "shared/ref.png")

	store := newMemStore()
	o, gen := newTestOrchestrator(store, proxyDir)

	datasetDir := filepath.Join(datasetRoot, "maya_v1")
	req := Request{
		ProjectID:   store.projectID(),
		SourcePath:  source,
		PackageName: "delivery_01",
		PackageType: "atman",
		Description: "day one client delivery",
		Tags:        []string{"delivery", "day1"},
		ProxyHeight: 540,
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{
				{OriginalPath: "maya/clip001.mov", AssetType: "raw", Selected: true},
			}},
			{Name: "shared", Files: []FileEntry{
				{OriginalPath: "shared/lowres.mp4", AssetType: "raw", Selected: true},
				{OriginalPath: "shared/ref.png", AssetType: "reference", Selected: true},
				{OriginalPath: "shared/unpicked.wav", AssetType: "raw", Selected: false},
			}},
		},
		DatasetMappings: []DatasetMapping{
			{SubjectName: "maya", DatasetDir: datasetDir, IsNew: true},
		},
	}

	events := runIngest(t, o, req)

	setup := eventOfType(events, "setup")
	require.NotNil(t, setup)
	assert.Equal(t, 2, setup.Subjects)
	assert.Equal(t, 1, setup.Packages)
	assert.Equal(t, 3, setup.TotalFiles)

	complete := events[len(events)-1]
	assert.Equal(t, "complete", complete.Type)
	assert.Equal(t, 3, complete.FileCount)
	assert.ElementsMatch(t, []string{"Maya", "Shared"}, complete.SubjectsCreated)

	// One footage package linked to both subjects.
	require.Len(t, store.packages, 1)
	for id, pkg := range store.packages {
		assert.Equal(t, "delivery_01", pkg.Name)
		assert.Equal(t, db.PackageStatusReady, pkg.Status)
		assert.Equal(t, int32(3), pkg.FileCount)
		assert.Equal(t, "day one client delivery", pkg.SourceDescription)
		assert.Equal(t, []string{"delivery", "day1"}, pkg.Tags)
		assert.Len(t, store.links[id], 2)
	}

	byFile := map[string]db.Asset{}
	for _, a := range store.assets {
		byFile[filepath.Base(a.Filename)] = a
	}
	require.Len(t, byFile, 3)

	// 4K ProRes gets a rendered proxy next to its thumbnail.
	clip := byFile["clip001.mov"]
	assert.Equal(t, db.FileTypeVideo, clip.FileType)
	assert.Equal(t, filepath.Join(proxyDir, "delivery_01", "maya", "clip001_proxy.mp4"), clip.ProxyPath.String)
	assert.ElementsMatch(t, []string{"Maya", "raw"}, clip.Tags)

	// Web-playable 720p serves as its own proxy.
	lowres := byFile["lowres.mp4"]
	assert.Equal(t, filepath.Join(source, "shared", "lowres.mp4"), lowres.ProxyPath.String)
	assert.True(t, lowres.ThumbnailPath.Valid)

	ref := byFile["ref.png"]
	assert.Equal(t, db.FileTypeImage, ref.FileType)
	assert.False(t, ref.ProxyPath.Valid)
	assert.True(t, ref.ThumbnailPath.Valid)

	assert.Equal(t, 1, gen.proxies)
	assert.Equal(t, 3, gen.thumbs)
	assert.Equal(t, 540, gen.lastHeight)

	// First thumbnail of the run becomes the subject portrait, served
	// through the media URL space.
	maya := store.subjects["Maya"]
	require.True(t, maya.ThumbnailURL.Valid)
	assert.True(t, strings.HasPrefix(maya.ThumbnailURL.String, "/media/"), maya.ThumbnailURL.String)

	// Dataset mirror: dir created, symlink laid out, subject updated.
	dsEvent := eventOfType(events, "datasets")
	require.NotNil(t, dsEvent)
	assert.Equal(t, "Maya", dsEvent.Subject)
	assert.Equal(t, 1, dsEvent.Created)

	link := filepath.Join(datasetDir, "media", "external", "from_client", "delivery_01", "visuals", "raw", "clip001.mov")
	_, err := os.Lstat(link)
	assert.NoError(t, err)
	assert.Equal(t, datasetDir, maya.DatasetDir.String)
}

func TestExecuteVFXMultiSubject(t *testing.T) {
	source := t.TempDir()
	writeFacePNG(t, filepath.Join(source, "paul", "face_000123_0.png"), map[string]any{
		"face_type": "whole_face", "yaw": 15.2, "pitch": -5.0,
		"source_width": 1920, "source_height": 1080,
		"source_filepath": "/footage/paul.mov", "source_filename": "paul.mov",
	})
	writeFacePNG(t, filepath.Join(source, "maya", "face_000200_0.png"), map[string]any{
		"face_type": "head", "yaw": -12.0, "pitch": 3.5,
	})

	store := newMemStore()
	o, _ := newTestOrchestrator(store, t.TempDir())

	req := Request{
		ProjectID:   store.projectID(),
		SourcePath:  source,
		PackageName: "extract_v2",
		PackageType: "vfx",
		Subjects: []SubjectInput{
			{Name: "paul", Files: []FileEntry{
				{OriginalPath: "paul/face_000123_0.png", AssetType: "aligned", Selected: true},
			}},
			{Name: "maya", Files: []FileEntry{
				{OriginalPath: "maya/face_000200_0.png", AssetType: "aligned", Selected: true},
			}},
		},
	}

	events := runIngest(t, o, req)
	assert.Equal(t, "complete", events[len(events)-1].Type)

	require.Len(t, store.packages, 2)
	names := map[string]*db.Package{}
	for _, pkg := range store.packages {
		names[pkg.Name] = pkg
	}
	paul, ok := names["extract_v2 — Paul"]
	require.True(t, ok, "expected a per-subject package, got %v", names)
	maya := names["extract_v2 — Maya"]
	require.NotNil(t, maya)

	assert.Equal(t, []string{"whole_face"}, paul.Metadata.FaceTypes)
	assert.Equal(t, 1, paul.Metadata.AlignedCount)
	assert.Equal(t, 1920, paul.Metadata.SourceWidth)
	assert.Equal(t, "/footage/paul.mov", paul.Metadata.SourceVideoPath)
	require.Len(t, paul.Metadata.PoseData, 1)
	assert.Equal(t, db.PoseBin{Yaw: 10, Pitch: -10, Count: 1}, paul.Metadata.PoseData[0])

	assert.Equal(t, []string{"head"}, maya.Metadata.FaceTypes)
	require.Len(t, maya.Metadata.PoseData, 1)
	assert.Equal(t, db.PoseBin{Yaw: -20, Pitch: 0, Count: 1}, maya.Metadata.PoseData[0])

	for _, a := range store.assets {
		require.NotNil(t, a.Metadata.Face, a.Filename)
	}
}

func TestExecuteSkipProxies(t *testing.T) {
	source := t.TempDir()
	writeFixture(t, source, "maya/clip001.mov")

	store := newMemStore()
	o, gen := newTestOrchestrator(store, t.TempDir())

	req := Request{
		ProjectID:   store.projectID(),
		SourcePath:  source,
		PackageName: "delivery_02",
		PackageType: "atman",
		SkipProxies: true,
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{
				{OriginalPath: "maya/clip001.mov", AssetType: "raw", Selected: true},
			}},
		},
	}

	runIngest(t, o, req)

	require.Len(t, store.assets, 1)
	assert.False(t, store.assets[0].ProxyPath.Valid)
	assert.True(t, store.assets[0].ThumbnailPath.Valid)
	assert.Equal(t, 0, gen.proxies)
	assert.Equal(t, 1, gen.thumbs)
}

func TestExecuteAbsoluteOriginalPaths(t *testing.T) {
	source := t.TempDir()
	writeFixture(t, source, "jane_cam1.mp4")
	abs := filepath.Join(source, "jane_cam1.mp4")

	store := newMemStore()
	o, _ := newTestOrchestrator(store, t.TempDir())

	req := Request{
		ProjectID:   store.projectID(),
		SourcePath:  source,
		PackageName: "shootA",
		PackageType: "atman",
		SkipProxies: true,
		Subjects: []SubjectInput{
			{Name: "Jane", Files: []FileEntry{
				{OriginalPath: abs, AssetType: "raw", Selected: true},
			}},
		},
	}

	events := runIngest(t, o, req)

	complete := events[len(events)-1]
	require.Equal(t, "complete", complete.Type)
	assert.Equal(t, 1, complete.FileCount)

	// The analyzer's absolute path is used verbatim on disk.
	require.Len(t, store.assets, 1)
	asset := store.assets[0]
	assert.Equal(t, abs, asset.DiskPath)
	assert.Equal(t, "jane_cam1.mp4", asset.Filename)
	assert.False(t, asset.ProxyPath.Valid)
}

func TestExecuteProgressCurrentNonDecreasing(t *testing.T) {
	source := t.TempDir()
	writeFixture(t, source, "maya/clip001.mov")
	writeFixture(t, source, "maya/clip002.mov")

	store := newMemStore()
	o, _ := newTestOrchestrator(store, t.TempDir())

	req := Request{
		ProjectID:   store.projectID(),
		SourcePath:  source,
		PackageName: "delivery_04",
		PackageType: "atman",
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{
				{OriginalPath: "maya/clip001.mov", AssetType: "raw", Selected: true},
				{OriginalPath: "maya/clip002.mov", AssetType: "raw", Selected: true},
				{OriginalPath: "maya/gone.mov", AssetType: "raw", Selected: true},
			}},
		},
	}

	events := runIngest(t, o, req)

	last := 0
	var steps []string
	for _, ev := range events {
		if ev.Current == 0 {
			continue
		}
		require.GreaterOrEqual(t, ev.Current, last, "current went backwards at step %s", ev.Step)
		last = ev.Current
		steps = append(steps, fmt.Sprintf("%d:%s", ev.Current, ev.Step))
	}
	assert.Equal(t, []string{
		"1:probing", "1:proxy", "1:inserting",
		"2:probing", "2:proxy", "2:inserting",
		"3:skipped",
	}, steps)
}

func TestExecuteRollbackOnInsertFailure(t *testing.T) {
	source := t.TempDir()
	writeFixture(t, source, "maya/clip001.mov")

	store := newMemStore()
	store.failAsset = true
	o, _ := newTestOrchestrator(store, t.TempDir())

	req := Request{
		ProjectID:   store.projectID(),
		SourcePath:  source,
		PackageName: "delivery_03",
		PackageType: "atman",
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{
				{OriginalPath: "maya/clip001.mov", AssetType: "raw", Selected: true},
			}},
		},
	}

	events := runIngest(t, o, req)

	terminal := events[len(events)-1]
	assert.Equal(t, "error", terminal.Type)
	assert.Contains(t, terminal.Message, "disk full")

	assert.Empty(t, store.assets)
	require.Len(t, store.packages, 1)
	for _, pkg := range store.packages {
		assert.Equal(t, db.PackageStatusError, pkg.Status)
		assert.Contains(t, pkg.Metadata.Error, "disk full")
	}
}

func TestExecuteUnknownProject(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(store, t.TempDir())

	source := t.TempDir()
	writeFixture(t, source, "clip.mov")
	req := Request{
		ProjectID:   db.UUIDString(db.NewUUID()),
		SourcePath:  source,
		PackageName: "orphan",
		PackageType: "atman",
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{{OriginalPath: "clip.mov", Selected: true}}},
		},
	}

	events := runIngest(t, o, req)
	terminal := events[len(events)-1]
	assert.Equal(t, "error", terminal.Type)
	assert.Contains(t, terminal.Message, "project not found")
	assert.Empty(t, store.packages)
}

func TestRequestValidate(t *testing.T) {
	source := t.TempDir()
	writeFixture(t, source, "clip.mov")

	valid := Request{
		SourcePath:  source,
		PackageName: "pkg",
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{{OriginalPath: "clip.mov", Selected: true}}},
		},
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.SourcePath = filepath.Join(source, "nope")
	assert.Error(t, missing.Validate())

	unselected := valid
	unselected.Subjects = []SubjectInput{
		{Name: "maya", Files: []FileEntry{{OriginalPath: "clip.mov", Selected: false}}},
	}
	assert.Error(t, unselected.Validate())

	unnamed := valid
	unnamed.PackageName = ""
	assert.Error(t, unnamed.Validate())
}

func TestOrchestratorValidateMediaRoots(t *testing.T) {
	allowed := t.TempDir()
	source := filepath.Join(allowed, "delivery_01")
	writeFixture(t, source, "clip.mov")

	req := Request{
		SourcePath:  source,
		PackageName: "pkg",
		Subjects: []SubjectInput{
			{Name: "maya", Files: []FileEntry{{OriginalPath: "clip.mov", Selected: true}}},
		},
	}

	inside := NewOrchestrator(Options{
		Store:      newMemStore(),
		Generator:  &fakeGen{},
		ProxyDir:   t.TempDir(),
		MediaRoots: []string{allowed},
	})
	assert.NoError(t, inside.Validate(&req))

	outside := NewOrchestrator(Options{
		Store:      newMemStore(),
		Generator:  &fakeGen{},
		ProxyDir:   t.TempDir(),
		MediaRoots: []string{t.TempDir()},
	})
	err := outside.Validate(&req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media root")

	// An empty allow-list accepts any existing directory.
	open := NewOrchestrator(Options{Store: newMemStore(), Generator: &fakeGen{}, ProxyDir: t.TempDir()})
	assert.NoError(t, open.Validate(&req))
}

func TestRecoverInterrupted(t *testing.T) {
	store := newMemStore()
	subj, err := store.GetOrCreateSubject(context.Background(), store.project.ID, "Maya")
	require.NoError(t, err)

	stuck, err := store.InsertPackage(context.Background(), db.InsertPackageParams{
		SubjectID: subj.ID, Name: "interrupted", PackageType: db.PackageTypeAtman,
	})
	require.NoError(t, err)
	done, err := store.InsertPackage(context.Background(), db.InsertPackageParams{
		SubjectID: subj.ID, Name: "finished", PackageType: db.PackageTypeAtman,
	})
	require.NoError(t, err)
	_, err = store.FinalizePackage(context.Background(), done.ID)
	require.NoError(t, err)

	require.NoError(t, RecoverInterrupted(context.Background(), store))

	assert.Equal(t, db.PackageStatusError, store.packages[db.UUIDString(stuck.ID)].Status)
	assert.Contains(t, store.packages[db.UUIDString(stuck.ID)].Metadata.Error, "interrupted")
	assert.Equal(t, db.PackageStatusReady, store.packages[db.UUIDString(done.ID)].Status)

	// Second sweep finds nothing.
	again, err := store.RecoverStuckPackages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}
