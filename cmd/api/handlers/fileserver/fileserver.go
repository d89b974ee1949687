// Package fileserver serves catalogued media files and their proxies.
package fileserver

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"ingesthub.systems/ingesthub/internal/media"
)

// fileCacheEntry stores cached ETag info.
type fileCacheEntry struct {
	size    int64
	modTime time.Time
	etag    string
}

// FileCache memoizes ETags for on-disk files.
// Entries are invalidated automatically when file size or modtime changes.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]fileCacheEntry
}

func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]fileCacheEntry)}
}

// ETag computes or retrieves a cached weak ETag for the given file.
func (c *FileCache) ETag(path string, info os.FileInfo) string {
	c.mu.RLock()
	if e, ok := c.entries[path]; ok {
		if e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
			c.mu.RUnlock()
			return e.etag
		}
	}
	c.mu.RUnlock()

	etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().Unix(), info.Size())

	c.mu.Lock()
	c.entries[path] = fileCacheEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		etag:    etag,
	}
	c.mu.Unlock()

	return etag
}

// HandleMedia serves files under the configured media roots. URL paths map
// back to disk through the same allow-list used when asset URLs are built,
// so only catalogued locations are reachable.
func HandleMedia(roots []string) echo.HandlerFunc {
	cache := NewFileCache()

	return func(c echo.Context) error {
		urlPath := c.Param("*")
		abs := media.Resolve(roots, urlPath, func(p string) bool {
			info, err := os.Stat(p)
			return err == nil && !info.IsDir()
		})
		if abs == "" {
			return echo.ErrNotFound
		}
		return serveDiskFile(c, cache, abs)
	}
}

func serveDiskFile(c echo.Context, cache *FileCache, absPath string) error {
	info, err := os.Stat(absPath)
	if err != nil {
		return echo.ErrNotFound
	}

	etag := cache.ETag(absPath, info)

	// Conditional requests
	if inm := c.Request().Header.Get("If-None-Match"); inm != "" && strings.TrimSpace(inm) == etag {
		return c.NoContent(http.StatusNotModified)
	}
	if ims := c.Request().Header.Get(echo.HeaderIfModifiedSince); ims != "" {
		if t, err := time.Parse(time.RFC1123, ims); err == nil {
			// Round to seconds (HTTP date resolution)
			if !info.ModTime().After(t.Add(time.Second)) {
				return c.NoContent(http.StatusNotModified)
			}
		}
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=3600")
	c.Response().Header().Set("Last-Modified", info.ModTime().UTC().Format(time.RFC1123))
	c.Response().Header().Set("ETag", etag)
	if ct := media.MIMEType(absPath); ct != "" {
		c.Response().Header().Set("Content-Type", ct)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return echo.ErrNotFound
	}
	defer f.Close()

	// http.ServeContent supports Range requests (used by the review player).
	http.ServeContent(c.Response(), c.Request(), filepath.Base(absPath), info.ModTime(), f)
	return nil
}
