// Package bitfield converts between packed piece bitfields, as reported by the daemon, and
// per-piece booleans. The high bit of the first byte corresponds to piece 0.
package bitfield

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed bitfield")

// Returns the number of bytes needed to hold numPieces bits.
func Len(numPieces int) int {
	return (numPieces + 7) / 8
}

// Decodes b into exactly numPieces booleans. b must be exactly as long as needed to hold numPieces
// bits, and the padding bits after the last piece must be clear.
func Decode(b []byte, numPieces int) (bf []bool, err error) {
	if numPieces < 0 {
		return nil, fmt.Errorf("%w: negative piece count %v", ErrMalformed, numPieces)
	}
	if len(b) != Len(numPieces) {
		return nil, fmt.Errorf(
			"%w: got %v bytes for %v pieces, expected %v",
			ErrMalformed, len(b), numPieces, Len(numPieces))
	}
	bf = make([]bool, 0, len(b)*8)
	for _, c := range b {
		for i := 7; i >= 0; i-- {
			bf = append(bf, (c>>uint(i))&1 == 1)
		}
	}
	for i := numPieces; i < len(bf); i++ {
		if bf[i] {
			return nil, fmt.Errorf("%w: spurious bit %v set beyond piece count %v", ErrMalformed, i, numPieces)
		}
	}
	return bf[:numPieces], nil
}

// Decodes the standard base64 form used in RPC responses.
func DecodeBase64(s string, numPieces int) ([]bool, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Decode(b, numPieces)
}

// Packs bf, zero-padding the final byte.
func Pack(bf []bool) (b []byte) {
	b = make([]byte, Len(len(bf)))
	for i, have := range bf {
		if !have {
			continue
		}
		b[i/8] |= 1 << uint(7-i%8)
	}
	return
}

func EncodeBase64(bf []bool) string {
	return base64.StdEncoding.EncodeToString(Pack(bf))
}
