package pieces

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectWantedTotality(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 200 {
		pieceSize := Length(1 + r.IntN(64))
		numFiles := 1 + r.IntN(6)
		lengths := make([]Length, numFiles)
		wanted := make([]bool, numFiles)
		var total Length
		for i := range lengths {
			lengths[i] = Length(r.IntN(200))
			wanted[i] = r.IntN(2) == 1
			total += lengths[i]
		}
		projected, err := ProjectWanted(lengths, wanted, pieceSize)
		require.NoError(t, err)
		assert.Len(t, projected, int((total+pieceSize-1)/pieceSize))
	}
}

func TestProjectWantedSharedBoundaryPiece(t *testing.T) {
	// Piece 1 holds the end of the first file and the start of the second.
	for _, wanted := range [][]bool{{true, false}, {false, true}} {
		projected, err := ProjectWanted([]Length{24, 24}, wanted, 16)
		require.NoError(t, err)
		assert.Equal(t, []bool{wanted[0], true, wanted[1]}, projected)
	}
	projected, err := ProjectWanted([]Length{24, 24}, []bool{false, false}, 16)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, projected)
}

func TestProjectWantedAligned(t *testing.T) {
	projected, err := ProjectWanted([]Length{16, 16, 16}, []bool{true, false, true}, 16)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, projected)
}

func TestProjectWantedShortFinalPiece(t *testing.T) {
	projected, err := ProjectWanted([]Length{16, 5}, []bool{false, true}, 16)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, projected)
}

func TestProjectWantedIgnoresZeroLengthFiles(t *testing.T) {
	projected, err := ProjectWanted([]Length{8, 0, 8}, []bool{false, true, false}, 16)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, projected)
}

func TestProjectWantedBadInput(t *testing.T) {
	_, err := ProjectWanted([]Length{1, 2}, []bool{true}, 16)
	assert.ErrorIs(t, err, ErrInconsistentLayout)
	_, err = ProjectWanted([]Length{1}, []bool{true}, 0)
	assert.ErrorIs(t, err, ErrInconsistentLayout)
	_, err = ProjectWanted([]Length{-1}, []bool{true}, 16)
	assert.ErrorIs(t, err, ErrInconsistentLayout)
}

func TestLayoutWantedChecksPieceCount(t *testing.T) {
	l := Layout{
		Files:      []File{{Name: "a", Length: 20, Wanted: true}},
		PieceSize:  16,
		PieceCount: 3,
	}
	_, err := l.Wanted()
	assert.ErrorIs(t, err, ErrInconsistentLayout)
	l.PieceCount = 2
	wanted, err := l.Wanted()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, wanted)
}

func TestPieceRange(t *testing.T) {
	for _, _case := range []struct {
		e          Extent
		pieceSize  Length
		begin, end int
	}{
		{Extent{0, 16}, 16, 0, 1},
		{Extent{0, 17}, 16, 0, 2},
		{Extent{15, 2}, 16, 0, 2},
		{Extent{16, 16}, 16, 1, 2},
		{Extent{32, 0}, 16, 2, 2},
		{Extent{16000, 33152}, 16384, 0, 3},
	} {
		begin, end := PieceRange(_case.e, _case.pieceSize)
		assert.EqualValues(t, _case.begin, begin, "%v", _case.e)
		assert.EqualValues(t, _case.end, end, "%v", _case.e)
	}
}
