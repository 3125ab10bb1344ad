// Package pieces maps a torrent's file table onto its pieces, and works out which file regions can
// be reclaimed without touching data belonging to wanted pieces.
package pieces

import (
	"errors"
	"fmt"
	"iter"
)

var (
	// The file table doesn't tile the pieces the daemon declared.
	ErrInconsistentLayout = errors.New("inconsistent torrent layout")
	// A wanted piece is present somewhere the trim byte accounting can't preserve it.
	ErrUnsupportedUnalignedOverlap = errors.New("unsupported unaligned overlap")
)

type (
	Int    = int64
	Length = Int
)

type Extent struct {
	Start, Length Int
}

func (e Extent) End() Int {
	return e.Start + e.Length
}

type File struct {
	// Relative to the download directory, may contain separators.
	Name   string
	Length Length
	Wanted bool
}

type Layout struct {
	Files      []File
	PieceSize  Length
	PieceCount int
}

func ceilDiv(a, b Int) Int {
	return (a + b - 1) / b
}

// Returns the pieces overlapped by the extent, as [begin, end).
func PieceRange(e Extent, pieceSize Length) (begin, end int) {
	return int(e.Start / pieceSize), int(ceilDiv(e.End(), pieceSize))
}

// Yields each file's extent within the concatenated torrent data, in declared order.
func (l Layout) Extents() iter.Seq2[int, Extent] {
	return func(yield func(int, Extent) bool) {
		var off Int
		for i, f := range l.Files {
			if !yield(i, Extent{off, f.Length}) {
				return
			}
			off += f.Length
		}
	}
}

func (l Layout) TotalLength() (ret Length) {
	for _, f := range l.Files {
		ret += f.Length
	}
	return
}

func (l Layout) FileLengths() []Length {
	ret := make([]Length, len(l.Files))
	for i, f := range l.Files {
		ret[i] = f.Length
	}
	return ret
}

func (l Layout) FilesWanted() []bool {
	ret := make([]bool, len(l.Files))
	for i, f := range l.Files {
		ret[i] = f.Wanted
	}
	return ret
}

// Projects the file wanted flags onto pieces, and checks the result agrees with the declared piece
// count.
func (l Layout) Wanted() ([]bool, error) {
	wanted, err := ProjectWanted(l.FileLengths(), l.FilesWanted(), l.PieceSize)
	if err != nil {
		return nil, err
	}
	if len(wanted) != l.PieceCount {
		return nil, fmt.Errorf(
			"%w: files total %v bytes, which is %v pieces of %v bytes, but %v pieces were declared",
			ErrInconsistentLayout, l.TotalLength(), len(wanted), l.PieceSize, l.PieceCount)
	}
	return wanted, nil
}
