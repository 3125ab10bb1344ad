package pieces

import (
	"fmt"

	"github.com/anacrolix/missinggo/v2/panicif"
)

type ActionKind int

const (
	// Nothing in the file can be reclaimed.
	None ActionKind = iota
	// The file holds no present, wanted piece data and can go entirely.
	Delete
	// The file shares present, wanted boundary pieces with its neighbours. Only the bytes of those
	// pieces are kept.
	Trim
)

func (k ActionKind) String() string {
	switch k {
	case None:
		return "none"
	case Delete:
		return "delete"
	case Trim:
		return "trim"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

type Action struct {
	Kind ActionKind
	// Only set for Trim.
	KeepFirstBytes Length
	KeepLastBytes  Length
}

func (a Action) String() string {
	if a.Kind != Trim {
		return a.Kind.String()
	}
	return fmt.Sprintf("trim(keep first %v, last %v)", a.KeepFirstBytes, a.KeepLastBytes)
}

// Decides what to do with each file, given which pieces are wanted and which are present.
func Classify(layout Layout, wanted, present []bool) ([]Action, error) {
	if len(wanted) != layout.PieceCount || len(present) != layout.PieceCount {
		return nil, fmt.Errorf(
			"%w: %v pieces declared, %v wanted flags, %v present flags",
			ErrInconsistentLayout, layout.PieceCount, len(wanted), len(present))
	}
	if layout.PieceSize <= 0 {
		return nil, fmt.Errorf("%w: piece size %v", ErrInconsistentLayout, layout.PieceSize)
	}
	presentWanted := SetFromBoolsAnd(present, wanted)
	presentUnwanted := SetFromBoolsAnd(present, not(wanted))
	actions := make([]Action, len(layout.Files))
	for i, e := range layout.Extents() {
		f := layout.Files[i]
		a, err := classifyFile(f, e, layout.PieceSize, presentWanted, presentUnwanted)
		if err != nil {
			return nil, fmt.Errorf("file %v (%q): %w", i, f.Name, err)
		}
		actions[i] = a
	}
	return actions, nil
}

func not(bs []bool) []bool {
	ret := make([]bool, len(bs))
	for i, b := range bs {
		ret[i] = !b
	}
	return ret
}

func classifyFile(f File, e Extent, pieceSize Length, presentWanted, presentUnwanted *Set) (a Action, err error) {
	if f.Length == 0 {
		return
	}
	begin, end := PieceRange(e, pieceSize)
	if presentUnwanted.RangeCardinality(begin, end) == 0 {
		return
	}
	if f.Wanted {
		err = fmt.Errorf("%w: wanted file overlaps unwanted pieces", ErrInconsistentLayout)
		return
	}
	if presentWanted.RangeCardinality(begin, end) == 0 {
		a.Kind = Delete
		return
	}
	// The file contains pieces shared with wanted neighbours. Those can only be at the edges.
	if n := presentWanted.RangeCardinality(begin+1, end-1); n != 0 {
		err = fmt.Errorf(
			"%w: %v interior pieces in [%v, %v) are present and wanted",
			ErrUnsupportedUnalignedOverlap, n, begin+1, end-1)
		return
	}
	a.Kind = Trim
	if presentWanted.Contains(begin) {
		if e.Start%pieceSize == 0 {
			err = fmt.Errorf(
				"%w: first piece %v is wanted but starts at the file's start",
				ErrUnsupportedUnalignedOverlap, begin)
			return
		}
		a.KeepFirstBytes = Int(begin+1)*pieceSize - e.Start
	}
	if presentWanted.Contains(end - 1) {
		if e.End()%pieceSize == 0 {
			err = fmt.Errorf(
				"%w: last piece %v is wanted but ends at the file's end",
				ErrUnsupportedUnalignedOverlap, end-1)
			return
		}
		a.KeepLastBytes = (pieceSize - (Int(end)*pieceSize - e.End())) % pieceSize
	}
	err = a.checkTrim(f.Length, pieceSize)
	return
}

func (a Action) checkTrim(fileLength, pieceSize Length) error {
	panicif.NotEq(a.Kind, Trim)
	if a.KeepFirstBytes < 0 || a.KeepFirstBytes >= pieceSize ||
		a.KeepLastBytes < 0 || a.KeepLastBytes >= pieceSize {
		return fmt.Errorf("%w: %v out of range for piece size %v", ErrUnsupportedUnalignedOverlap, a, pieceSize)
	}
	if a.KeepFirstBytes == 0 && a.KeepLastBytes == 0 {
		return fmt.Errorf("%w: %v keeps nothing", ErrUnsupportedUnalignedOverlap, a)
	}
	if a.KeepFirstBytes+a.KeepLastBytes >= fileLength {
		return fmt.Errorf("%w: %v keeps all %v bytes", ErrUnsupportedUnalignedOverlap, a, fileLength)
	}
	return nil
}
