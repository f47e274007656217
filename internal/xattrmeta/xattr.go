// Package xattrmeta caches a local file's last-known remote metadata in
// filesystem extended attributes, so a later conflict check can skip
// re-reading and re-hashing the file's full contents when nothing has
// touched it since the last sync. It is a pure optimization:
// every caller must tolerate the cache being absent, unsupported, or stale,
// and fall back to computing the hash from the file itself.
package xattrmeta

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gasdevtools/gas-sync/internal/types"
)

// The three extended attributes this package manages.
const (
	attrUpdateTime  = "user.gas.updateTime"
	attrFileType    = "user.gas.fileType"
	attrContentHash = "user.gas.contentHash"
)

// Cache reads and writes the per-file metadata cache. It never returns an
// error for "unsupported" conditions (attribute missing, filesystem without
// xattr support, permission denied) - those are reported as ok=false so
// callers fall through to recomputing.
type Cache struct{}

// NewCache constructs a xattr-backed metadata cache.
func NewCache() *Cache { return &Cache{} }

func getAttr(path, name string) (string, bool) {
	buf := make([]byte, 512)
	n, err := unix.Getxattr(path, name, buf)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}

// Get returns the cached LocalFileMeta for path. ok is false whenever the
// file exists but has no attributes, the file is absent, or the cache
// cannot be consulted for any other reason - never an error condition.
func (c *Cache) Get(path string) (meta types.LocalFileMeta, ok bool) {
	if _, err := os.Stat(path); err != nil {
		return types.LocalFileMeta{}, false
	}

	hashStr, hashOK := getAttr(path, attrContentHash)
	if !hashOK {
		return types.LocalFileMeta{}, false
	}
	meta.ContentHash = types.ContentHash(hashStr)

	if kindStr, ok := getAttr(path, attrFileType); ok {
		meta.FileKind = types.FileKind(kindStr)
	}

	if tsStr, ok := getAttr(path, attrUpdateTime); ok {
		if unixNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			meta.RemoteUpdateTime = time.Unix(0, unixNano).UTC()
		}
	}

	return meta, true
}

// Put writes meta into path's extended attribute cache. It is best-effort:
// any failure (read-only mount, unsupported filesystem, attribute size
// limits) is swallowed and reported via the returned bool so the pipeline
// can log at debug level without treating it as a pipeline failure.
func (c *Cache) Put(path string, meta types.LocalFileMeta) bool {
	ok := unix.Setxattr(path, attrContentHash, []byte(meta.ContentHash), 0) == nil
	if meta.FileKind != "" {
		ok = unix.Setxattr(path, attrFileType, []byte(meta.FileKind), 0) == nil && ok
	}
	if !meta.RemoteUpdateTime.IsZero() {
		v := strconv.FormatInt(meta.RemoteUpdateTime.UnixNano(), 10)
		ok = unix.Setxattr(path, attrUpdateTime, []byte(v), 0) == nil && ok
	}
	return ok
}

// Clear removes all cache attributes from a single file, never touching
// its bytes. A missing attribute is not an error.
func (c *Cache) Clear(path string) {
	for _, name := range []string{attrContentHash, attrFileType, attrUpdateTime} {
		err := unix.Removexattr(path, name)
		_ = err // ENODATA (attribute absent) and any other failure are both fine to ignore here
	}
}

// ClearAll removes the metadata cache from every regular file under a
// project's local mirror directory.
func (c *Cache) ClearAll(projectDir string) error {
	return filepath.WalkDir(projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		c.Clear(path)
		return nil
	})
}

// Present reports whether path currently carries a readable cache entry. It
// calls Get and discards the decoded metadata.
func (c *Cache) Present(path string) bool {
	_, ok := c.Get(path)
	return ok
}
