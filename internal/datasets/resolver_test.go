package datasets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingesthub.systems/ingesthub/internal/db"
)

func TestCanonicalSubjectName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"jane_doe", "Jane Doe"},
		{"  jane doe  ", "Jane Doe"},
		{"JANE_DOE", "Jane Doe"},
		{"cooper", "Cooper"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalSubjectName(tt.in), tt.in)
	}
}

func TestMatchDatasetDirs(t *testing.T) {
	dirs := []string{"jane_doe", "john_smith", "janet_dawson", "cooper-b", "archive"}

	t.Run("exact match short-circuits", func(t *testing.T) {
		got := MatchDatasetDirs("Jane Doe", dirs)
		require.Len(t, got, 1)
		assert.Equal(t, "jane_doe", got[0].DirName)
		assert.Equal(t, 1.0, got[0].Score)
		assert.Equal(t, "exact", got[0].MatchType)
	})

	t.Run("prefix", func(t *testing.T) {
		got := MatchDatasetDirs("cooper", dirs)
		require.NotEmpty(t, got)
		assert.Equal(t, "cooper-b", got[0].DirName)
		assert.Equal(t, 0.9, got[0].Score)
		assert.Equal(t, "prefix", got[0].MatchType)
	})

	t.Run("substring", func(t *testing.T) {
		got := MatchDatasetDirs("net daws", dirs)
		require.NotEmpty(t, got)
		assert.Equal(t, "janet_dawson", got[0].DirName)
		assert.Equal(t, "substring", got[0].MatchType)
	})

	t.Run("fuzzy tolerates typos", func(t *testing.T) {
		got := MatchDatasetDirs("jon smith", dirs)
		require.NotEmpty(t, got)
		assert.Equal(t, "john_smith", got[0].DirName)
		assert.Equal(t, "fuzzy", got[0].MatchType)
		assert.GreaterOrEqual(t, got[0].Score, 0.75)
	})

	t.Run("no match for unrelated name", func(t *testing.T) {
		got := MatchDatasetDirs("zzzzqqq", dirs)
		assert.Empty(t, got)
	})

	t.Run("empty name", func(t *testing.T) {
		assert.Empty(t, MatchDatasetDirs("  ", dirs))
	})

	t.Run("caps at five candidates", func(t *testing.T) {
		many := []string{"alex_a", "alex_b", "alex_c", "alex_d", "alex_e", "alex_f", "alex_g"}
		got := MatchDatasetDirs("alex", many)
		assert.Len(t, got, 5)
	})
}

// subjectDirMap serves stored dataset assignments by canonical subject name.
type subjectDirMap map[string]string

func (m subjectDirMap) GetSubjectByName(_ context.Context, _ pgtype.UUID, name string) (*db.Subject, error) {
	dir, ok := m[name]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &db.Subject{Name: name, DatasetDir: pgtype.Text{String: dir, Valid: true}}, nil
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "jane_doe"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "archive"), 0o755))

	store := subjectDirMap{"Jane Doe": "/datasets/jane_doe"}
	r := NewResolver(store, root)

	got := r.Resolve(context.Background(), pgtype.UUID{}, []string{"jane doe", "newcomer"})
	require.Len(t, got, 2)

	// A stored assignment is reported alongside the ranked candidates, and
	// the name is echoed as given.
	jane := got[0]
	assert.Equal(t, "jane doe", jane.SubjectName)
	assert.Equal(t, "/datasets/jane_doe", jane.ExistingDir)
	require.NotEmpty(t, jane.Suggestions)
	assert.Equal(t, "jane_doe", jane.Suggestions[0].DirName)
	assert.Equal(t, 1.0, jane.Suggestions[0].Score)
	assert.Equal(t, "exact", jane.Suggestions[0].MatchType)

	unknown := got[1]
	assert.Equal(t, "newcomer", unknown.SubjectName)
	assert.Empty(t, unknown.ExistingDir)
	assert.NotNil(t, unknown.Suggestions)
	assert.Empty(t, unknown.Suggestions)
}

func TestListDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "beta"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "alpha"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	assert.Equal(t, []string{"alpha", "beta"}, ListDirs(root))
	assert.Empty(t, ListDirs(filepath.Join(root, "missing")))
}

func TestCreateSymlinks(t *testing.T) {
	srcDir := t.TempDir()
	datasetDir := t.TempDir()

	video := filepath.Join(srcDir, "take1.mp4")
	audio := filepath.Join(srcDir, "boom.wav")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0o644))
	require.NoError(t, os.WriteFile(audio, []byte("a"), 0o644))

	assets := []LinkAsset{
		{SourcePath: video, FileType: "video", AssetType: "raw"},
		{SourcePath: audio, FileType: "audio", AssetType: "raw"},
	}

	res := CreateSymlinks(datasetDir, "delivery_2026_01", assets)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Empty(t, res.Errors)

	linked, err := os.Readlink(filepath.Join(datasetDir,
		"media", "external", "from_client", "delivery_2026_01", "visuals", "raw", "take1.mp4"))
	require.NoError(t, err)
	assert.Equal(t, video, linked)

	_, err = os.Lstat(filepath.Join(datasetDir,
		"media", "external", "from_client", "delivery_2026_01", "audio", "raw", "boom.wav"))
	assert.NoError(t, err)

	t.Run("rerun skips existing links", func(t *testing.T) {
		res := CreateSymlinks(datasetDir, "delivery_2026_01", assets)
		assert.Equal(t, 0, res.Created)
		assert.Equal(t, 2, res.Skipped)
	})

	t.Run("stale link is replaced", func(t *testing.T) {
		moved := filepath.Join(srcDir, "take1_v2.mp4")
		require.NoError(t, os.WriteFile(moved, []byte("v2"), 0o644))

		link := filepath.Join(datasetDir,
			"media", "external", "from_client", "delivery_2026_01", "visuals", "raw", "take1.mp4")
		require.NoError(t, os.Remove(link))
		require.NoError(t, os.Symlink(moved, link))

		res := CreateSymlinks(datasetDir, "delivery_2026_01", assets[:1])
		assert.Equal(t, 1, res.Created)

		got, err := os.Readlink(link)
		require.NoError(t, err)
		assert.Equal(t, video, got)
	})

	t.Run("traversal attempts are sanitized", func(t *testing.T) {
		res := CreateSymlinks(datasetDir, "../../etc", assets[:1])
		assert.Empty(t, res.Errors)
		// Link lands under the sanitized basename, inside the dataset dir
		_, err := os.Lstat(filepath.Join(datasetDir,
			"media", "external", "from_client", "etc", "visuals", "raw", "take1.mp4"))
		assert.NoError(t, err)
	})
}
