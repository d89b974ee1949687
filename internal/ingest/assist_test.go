package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTargetPath(t *testing.T) {
	tests := []struct {
		target string
		want   targetParts
	}{
		{"", targetParts{Subject: "shared", Camera: "cam_a", AssetType: "raw"}},
		{"maya", targetParts{Subject: "maya", Camera: "cam_a", AssetType: "raw"}},
		{"maya/cam_b", targetParts{Subject: "maya", Camera: "cam_b", AssetType: "raw"}},
		{"maya/cam_b/graded", targetParts{Subject: "maya", Camera: "cam_b", AssetType: "graded"}},
		{"/shared/cam_a/reference/extra", targetParts{Subject: "shared", Camera: "cam_a", AssetType: "reference"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseTargetPath(tt.target), tt.target)
	}
}

func facts(paths ...string) []FileFact {
	out := make([]FileFact, 0, len(paths))
	for _, p := range paths {
		out = append(out, FileFact{Path: p})
	}
	return out
}

func assign(subject string, paths ...string) map[string]targetParts {
	lookup := map[string]targetParts{}
	for _, p := range paths {
		lookup[p] = targetParts{Subject: subject, Camera: "cam_a", AssetType: "raw"}
	}
	return lookup
}

func TestValidateSubjectAssignments(t *testing.T) {
	t.Run("redistributes by directory structure", func(t *testing.T) {
		files := facts(
			"john_smith/a.mov", "john_smith/b.mov",
			"jane_doe/c.mov", "jane_doe/d.mov",
			"e.mov",
		)
		// The model dumped everything on one subject even though the paths
		// clearly split into two directories.
		lookup := assign("maya",
			"john_smith/a.mov", "john_smith/b.mov",
			"jane_doe/c.mov", "jane_doe/d.mov", "e.mov")

		got := validateSubjectAssignments(lookup, files)
		assert.Equal(t, "john_smith", got["john_smith/a.mov"].Subject)
		assert.Equal(t, "john_smith", got["john_smith/b.mov"].Subject)
		assert.Equal(t, "jane_doe", got["jane_doe/c.mov"].Subject)
		assert.Equal(t, "maya", got["e.mov"].Subject)
	})

	t.Run("keeps balanced assignments", func(t *testing.T) {
		files := facts("john_smith/a.mov", "jane_doe/b.mov")
		lookup := assign("john_smith", "john_smith/a.mov")
		lookup["jane_doe/b.mov"] = targetParts{Subject: "jane_doe", Camera: "cam_a", AssetType: "raw"}

		got := validateSubjectAssignments(lookup, files)
		assert.Equal(t, "john_smith", got["john_smith/a.mov"].Subject)
		assert.Equal(t, "jane_doe", got["jane_doe/b.mov"].Subject)
	})

	t.Run("generic directories never become subjects", func(t *testing.T) {
		files := facts(
			"footage/a.mov", "footage/b.mov",
			"graded/c.mov", "graded/d.mov",
		)
		lookup := assign("maya", "footage/a.mov", "footage/b.mov", "graded/c.mov", "graded/d.mov")

		got := validateSubjectAssignments(lookup, files)
		for path := range got {
			assert.Equal(t, "maya", got[path].Subject, path)
		}
	})
}

func TestMatchSharedByFilename(t *testing.T) {
	files := facts(
		"maya/clip001.mov",
		"graded/clip001_graded.mov",
		"graded/clip002_graded.mov",
		"graded/broll.mov",
		"john/clip002.mov",
		"maya/clip002.mov",
	)
	lookup := map[string]targetParts{
		"maya/clip001.mov":         {Subject: "maya", Camera: "cam_a", AssetType: "raw"},
		"maya/clip002.mov":         {Subject: "maya", Camera: "cam_a", AssetType: "raw"},
		"john/clip002.mov":         {Subject: "john", Camera: "cam_a", AssetType: "raw"},
		"graded/clip001_graded.mov": {Subject: "shared", Camera: "cam_a", AssetType: "graded"},
		"graded/clip002_graded.mov": {Subject: "shared", Camera: "cam_a", AssetType: "graded"},
		"graded/broll.mov":          {Subject: "shared", Camera: "cam_a", AssetType: "raw"},
	}

	got := matchSharedByFilename(lookup, files)

	// Stem match through the grading suffix.
	assert.Equal(t, "maya", got["graded/clip001_graded.mov"].Subject)
	// clip002 belongs to two subjects, so the graded export stays shared.
	assert.Equal(t, "shared", got["graded/clip002_graded.mov"].Subject)
	// No stem match at all.
	assert.Equal(t, "shared", got["graded/broll.mov"].Subject)
}
