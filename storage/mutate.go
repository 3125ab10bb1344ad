package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/anacrolix/log"
)

type RemoveResult struct {
	// The on-disk names that were removed, relative to the root.
	Removed []string
	Bytes   int64
}

// Removes name and name.part, whichever exist, then any directories left empty. If both exist and
// are unrelated, both are still removed. Neither existing isn't an error, as the user may have
// deleted the file already.
func (d Dir) Remove(name string) (ret RemoveResult, err error) {
	p, err := d.path(name)
	if err != nil {
		return
	}
	for _, suffix := range []string{"", PartSuffix} {
		var fi os.FileInfo
		fi, err = lstatIfExists(p + suffix)
		if err != nil {
			return
		}
		if fi == nil {
			continue
		}
		err = os.Remove(p + suffix)
		if err != nil {
			return
		}
		ret.Removed = append(ret.Removed, name+suffix)
		ret.Bytes += fi.Size()
	}
	if len(ret.Removed) == 0 {
		logger.WithDefaultLevel(log.Warning).Printf("could not find %q to delete", name)
		return
	}
	err = d.pruneEmptyParents(p)
	if err != nil {
		err = fmt.Errorf("removing empty parent directories: %w", err)
	}
	return
}

type TrimResult struct {
	// The name the data was read from, relative to the root.
	Source string
	Length int64
	// Bytes no longer holding data. They may or may not be freed on disk, depending on the
	// filesystem's support for holes.
	Dropped int64
}

// Opens name, or name.part if that doesn't exist.
func openExisting(p string) (f *os.File, suffix string, err error) {
	f, err = os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		suffix = PartSuffix
		f, err = os.Open(p + suffix)
	}
	return
}

// Rewrites name as name.part, keeping only the first keepFirst and last keepLast bytes. The bytes
// between become a hole that reads as zeroes, which the daemon treats as missing piece data. The
// data is written to a temporary file that replaces name.part once complete, and name is removed
// if it existed.
func (d Dir) Trim(name string, keepFirst, keepLast int64) (ret TrimResult, err error) {
	if keepFirst < 0 || keepLast < 0 {
		err = fmt.Errorf("negative trim bounds (%v, %v)", keepFirst, keepLast)
		return
	}
	p, err := d.path(name)
	if err != nil {
		return
	}
	src, suffix, err := openExisting(p)
	if err != nil {
		return
	}
	defer src.Close()
	ret.Source = name + suffix
	fi, err := src.Stat()
	if err != nil {
		return
	}
	ret.Length = fi.Size()
	if keepFirst+keepLast > ret.Length {
		err = fmt.Errorf(
			"%w: keeping %v+%v bytes of %q which has %v",
			ErrUnexpectedEOF, keepFirst, keepLast, ret.Source, ret.Length)
		return
	}
	tempPath := p + tempSuffix
	// Also clears out anything left by an interrupted run.
	dst, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return
	}
	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			err = errors.Join(err, removeErr)
		}
	}()
	err = writeKept(dst, src, ret.Length, keepFirst, keepLast)
	closeErr := dst.Close()
	if err != nil {
		return
	}
	if closeErr != nil {
		err = closeErr
		return
	}
	err = os.Rename(tempPath, p+PartSuffix)
	if err != nil {
		return
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	ret.Dropped = ret.Length - keepFirst - keepLast
	return
}

func writeKept(dst *os.File, src io.ReadSeeker, length, keepFirst, keepLast int64) (err error) {
	if keepFirst > 0 {
		err = CopyN(dst, src, keepFirst)
		if err != nil {
			return fmt.Errorf("copying first %v bytes: %w", keepFirst, err)
		}
	}
	if keepLast > 0 {
		off := length - keepLast
		_, err = src.Seek(off, io.SeekStart)
		if err != nil {
			return
		}
		_, err = dst.Seek(off, io.SeekStart)
		if err != nil {
			return
		}
		err = CopyN(dst, src, keepLast)
		if err != nil {
			return fmt.Errorf("copying last %v bytes: %w", keepLast, err)
		}
	}
	// Extends over any trailing gap so the file keeps its length.
	return dst.Truncate(length)
}
