package media

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	roots := []string{"/mnt/proxies", "/mnt/shoots"}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"first root", "/mnt/proxies/pkg/clip_thumb.jpg", "/media/pkg/clip_thumb.jpg"},
		{"second root", "/mnt/shoots/day1/a.mov", "/media/day1/a.mov"},
		{"outside roots", "/tmp/a.mov", ""},
		{"empty path", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(roots, tt.path))
		})
	}
}

func TestResolve(t *testing.T) {
	roots := []string{"/mnt/proxies", "/mnt/shoots"}
	exists := func(p string) bool {
		return p == filepath.Join("/mnt/shoots", "day1", "a.mov")
	}

	assert.Equal(t, "/mnt/shoots/day1/a.mov", Resolve(roots, "day1/a.mov", exists))
	assert.Empty(t, Resolve(roots, "day2/b.mov", exists))
	assert.Empty(t, Resolve(roots, "../etc/passwd", exists))
}

func TestUnderRoot(t *testing.T) {
	roots := []string{"/mnt/shoots/"}

	assert.True(t, UnderRoot(roots, "/mnt/shoots/day1/a.mov"))
	assert.False(t, UnderRoot(roots, "/mnt/shoots_other/a.mov"))
	assert.False(t, UnderRoot(roots, "/tmp/a.mov"))
	assert.True(t, UnderRoot(nil, "/anywhere/at/all"))
}
