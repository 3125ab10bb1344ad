// Package storage reclaims space from a torrent's files in the daemon's download directory, by
// removing files outright or trimming them down to the bytes of pieces that must be kept.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/anacrolix/log"
)

const (
	// The daemon's suffix for files that aren't completely downloaded.
	PartSuffix = ".part"
	tempSuffix = ".transmission-delete-unwanted-tmp"
)

var (
	ErrUnexpectedEOF = errors.New("unexpected end of input")
	ErrUnsafePath    = errors.New("unsafe path")
)

var logger = log.Default.WithNames("storage")

// The daemon's download directory. File names are relative to it.
type Dir struct {
	Root string
}

// Returns the OS path for a torrent file name, refusing names that would escape the root.
func (d Dir) path(name string) (string, error) {
	osName := filepath.FromSlash(name)
	if !filepath.IsLocal(osName) {
		return "", fmt.Errorf("%w: %q is not inside %q", ErrUnsafePath, name, d.Root)
	}
	return filepath.Join(d.Root, osName), nil
}

// The variants of a torrent file present on disk.
type Variants struct {
	Complete os.FileInfo
	Part     os.FileInfo
}

func (v Variants) Any() bool {
	return v.Complete != nil || v.Part != nil
}

func lstatIfExists(p string) (os.FileInfo, error) {
	fi, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return fi, err
}

// Reports which of name and name.part exist.
func (d Dir) Stat(name string) (ret Variants, err error) {
	p, err := d.path(name)
	if err != nil {
		return
	}
	ret.Complete, err = lstatIfExists(p)
	if err != nil {
		return
	}
	ret.Part, err = lstatIfExists(p + PartSuffix)
	return
}

func isDirEmpty(p string) (bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}

// Removes empty directories from the parent of p upwards, stopping at the first non-empty one. The
// root itself is never removed.
func (d Dir) pruneEmptyParents(p string) error {
	root := filepath.Clean(d.Root)
	for dir := filepath.Dir(p); dir != root; dir = filepath.Dir(dir) {
		rel, err := filepath.Rel(root, dir)
		if err != nil || !filepath.IsLocal(rel) {
			return nil
		}
		empty, err := isDirEmpty(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if !empty {
			return nil
		}
		logger.WithDefaultLevel(log.Debug).Printf("removing empty directory %q", dir)
		err = os.Remove(dir)
		if err != nil {
			return err
		}
	}
	return nil
}
