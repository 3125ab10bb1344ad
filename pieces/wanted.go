package pieces

import (
	"fmt"
)

// Returns whether each piece is wanted, given the files' lengths and wanted flags in torrent order.
// A piece is wanted if any file overlapping it is wanted, since piece data can't be kept at
// sub-piece granularity. Zero-length files occupy no bytes and so don't influence any piece.
func ProjectWanted(fileLengths []Length, fileWanted []bool, pieceSize Length) ([]bool, error) {
	if len(fileLengths) != len(fileWanted) {
		return nil, fmt.Errorf(
			"%w: %v file lengths but %v wanted flags",
			ErrInconsistentLayout, len(fileLengths), len(fileWanted))
	}
	if pieceSize <= 0 {
		return nil, fmt.Errorf("%w: piece size %v", ErrInconsistentLayout, pieceSize)
	}
	var total Length
	for i, l := range fileLengths {
		if l < 0 {
			return nil, fmt.Errorf("%w: file %v has negative length %v", ErrInconsistentLayout, i, l)
		}
		total += l
	}
	numPieces := int(ceilDiv(total, pieceSize))
	wanted := make([]bool, numPieces)
	assigned := make([]bool, numPieces)
	var off Int
	for i, l := range fileLengths {
		e := Extent{off, l}
		off = e.End()
		if l == 0 {
			continue
		}
		begin, end := PieceRange(e, pieceSize)
		for p := begin; p < end; p++ {
			// The previous file may have already set this piece, if they share it.
			wanted[p] = wanted[p] || fileWanted[i]
			assigned[p] = true
		}
	}
	for p, ok := range assigned {
		if !ok {
			return nil, fmt.Errorf("%w: piece %v is not covered by any file", ErrInconsistentLayout, p)
		}
	}
	return wanted, nil
}
