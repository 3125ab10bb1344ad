package pieces

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

type Summary struct {
	PieceSize       Length
	Wanted          int
	Present         int
	PresentUnwanted int
}

func Summarize(pieceSize Length, wanted, present []bool) (ret Summary) {
	ret.PieceSize = pieceSize
	ret.Wanted = SetFromBools(wanted).Len()
	ret.Present = SetFromBools(present).Len()
	ret.PresentUnwanted = SetFromBoolsAnd(present, not(wanted)).Len()
	return
}

// Formats a piece count with its approximate size. The final piece may be short, so this can
// overstate slightly.
func (s Summary) FormatPieces(n int) string {
	if n == 0 {
		return "0 pieces"
	}
	return fmt.Sprintf("%d pieces (%s)", n, humanize.IBytes(uint64(n)*uint64(s.PieceSize)))
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"Wanted: %s; present: %s; present and not wanted: %s",
		s.FormatPieces(s.Wanted),
		s.FormatPieces(s.Present),
		s.FormatPieces(s.PresentUnwanted))
}
