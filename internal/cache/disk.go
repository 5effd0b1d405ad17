package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"codegraph/internal/logging"
	"codegraph/internal/model"
)

// Disk is the persistent fragment cache. Entries are keyed by
// (path, content hash) so a reverted file reuses its old fragment without a
// re-parse, and survive process restarts. Everything here is best-effort:
// corrupt or unreadable entries behave as misses and are never fatal.
type Disk struct {
	dir    string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *logging.Logger
}

// NewDisk opens (creating if needed) a disk cache rooted at dir.
func NewDisk(dir string, logger *logging.Logger) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Disk{
		dir:    dir,
		enc:    enc,
		dec:    dec,
		logger: logger.WithComponent("diskcache"),
	}, nil
}

// pathKey derives a short stable filename component from a file path, so
// entries for one path can be invalidated together regardless of hash.
func pathKey(path string) string {
	sum := blake2b.Sum256([]byte(path))
	return hex.EncodeToString(sum[:8])
}

func (d *Disk) entryPath(path, hash string) string {
	return filepath.Join(d.dir, pathKey(path)+"-"+hash+".json.zst")
}

// Get returns the cached fragment for (path, hash), or (nil, false) on miss.
// Unreadable or corrupt entries are removed and reported as misses.
func (d *Disk) Get(path, hash string) (*model.Fragment, bool) {
	file := d.entryPath(path, hash)

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, false
	}

	raw, err := d.dec.DecodeAll(data, nil)
	if err != nil {
		d.logger.Debug("Dropping corrupt cache entry", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
		_ = os.Remove(file)
		return nil, false
	}

	var frag model.Fragment
	if err := json.Unmarshal(raw, &frag); err != nil {
		d.logger.Debug("Dropping unreadable cache entry", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
		_ = os.Remove(file)
		return nil, false
	}

	// Sanity check: the entry must describe the file it was asked for.
	if frag.Path != path || frag.Hash != hash {
		_ = os.Remove(file)
		return nil, false
	}

	return &frag, true
}

// Put stores a fragment under (path, hash). The write goes through a temp
// file and a rename so readers never observe a partial entry.
func (d *Disk) Put(path, hash string, frag *model.Fragment) error {
	raw, err := json.Marshal(frag)
	if err != nil {
		return fmt.Errorf("failed to marshal fragment: %w", err)
	}
	compressed := d.enc.EncodeAll(raw, nil)

	file := d.entryPath(path, hash)
	tmp, err := os.CreateTemp(d.dir, "put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}

	if err := os.Rename(tmpName, file); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// Invalidate removes every cached fragment for a path, across all hashes.
func (d *Disk) Invalidate(path string) error {
	pattern := filepath.Join(d.dir, pathKey(path)+"-*.json.zst")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to glob cache entries: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cache entry: %w", err)
		}
	}
	return nil
}

// EntryCount returns the number of entries on disk, for stats reporting.
func (d *Disk) EntryCount() int {
	matches, err := filepath.Glob(filepath.Join(d.dir, "*.json.zst"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// Close releases the compressor resources.
func (d *Disk) Close() {
	d.enc.Close()
	d.dec.Close()
}
