package pieces

import (
	"github.com/RoaringBitmap/roaring"
)

// A set of piece indices.
type Set struct {
	bm roaring.Bitmap
}

func SetFromBools(bs []bool) *Set {
	var s Set
	for i, b := range bs {
		if b {
			s.bm.Add(uint32(i))
		}
	}
	return &s
}

// Builds the set of indices where a[i] && b[i].
func SetFromBoolsAnd(a, b []bool) *Set {
	var s Set
	for i := range min(len(a), len(b)) {
		if a[i] && b[i] {
			s.bm.Add(uint32(i))
		}
	}
	return &s
}

func (s *Set) Contains(i int) bool {
	return i >= 0 && s.bm.Contains(uint32(i))
}

func (s *Set) Add(i int) {
	s.bm.Add(uint32(i))
}

func (s *Set) Len() int {
	return int(s.bm.GetCardinality())
}

func (s *Set) IsEmpty() bool {
	return s.bm.IsEmpty()
}

// Returns the number of pieces in the set within [start, end). Rank is the count of items <= its
// argument, so the range is the rank of the last item, less the rank of the item before the first.
func (s *Set) RangeCardinality(start, end int) (card int) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return 0
	}
	card = int(s.bm.Rank(uint32(end - 1)))
	if start != 0 {
		card -= int(s.bm.Rank(uint32(start - 1)))
	}
	return
}

// Returns the pieces in s that aren't in other.
func (s *Set) AndNot(other *Set) *Set {
	return &Set{*roaring.AndNot(&s.bm, &other.bm)}
}

func (s *Set) Slice() []int {
	ret := make([]int, 0, s.Len())
	s.bm.Iterate(func(x uint32) bool {
		ret = append(ret, int(x))
		return true
	})
	return ret
}
