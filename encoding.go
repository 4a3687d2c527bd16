// Package idalloc - encoding.go converts IDs to and from compact text forms.
//
// Decoding uses 256-entry lookup tables built once at init; they are read-only
// afterwards and safe for concurrent use.

package idalloc

import (
	"errors"
	"math"
)

// Maximum encoded lengths for a 64-bit value.
const (
	MaxBase58Len = 11 // 58^11 > 2^64
	MaxBase62Len = 11 // 62^11 > 2^64
	MaxHexLen    = 16
)

// Encoding errors returned when parsing invalid encoded strings.
var (
	ErrInvalidBase58   = errors.New("invalid base58 encoding")
	ErrInvalidBase62   = errors.New("invalid base62 encoding")
	ErrInvalidHex      = errors.New("invalid hexadecimal encoding")
	ErrEmptyEncoding   = errors.New("empty encoded string")
	ErrStringTooLong   = errors.New("encoded string exceeds maximum length")
	ErrIntegerOverflow = errors.New("decoded value would overflow uint64")
)

// Bitcoin alphabet: no 0, O, I or l.
const encodeBase58Map = "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

const encodeBase62Map = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const encodeHexMap = "0123456789abcdef"

const invalidDigit = 0xFF

var (
	decodeBase58Map [256]byte
	decodeBase62Map [256]byte
	decodeHexMap    [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		decodeBase58Map[i] = invalidDigit
		decodeBase62Map[i] = invalidDigit
		decodeHexMap[i] = invalidDigit
	}
	for i := 0; i < len(encodeBase58Map); i++ {
		decodeBase58Map[encodeBase58Map[i]] = byte(i)
	}
	for i := 0; i < len(encodeBase62Map); i++ {
		decodeBase62Map[encodeBase62Map[i]] = byte(i)
	}
	for i := 0; i < len(encodeHexMap); i++ {
		decodeHexMap[encodeHexMap[i]] = byte(i)
		if encodeHexMap[i] >= 'a' {
			decodeHexMap[encodeHexMap[i]-32] = byte(i)
		}
	}
}

// encodeBase encodes v using alphabet, most significant digit first.
func encodeBase(v uint64, alphabet string, maxLen int) string {
	base := uint64(len(alphabet))
	if v < base {
		return string(alphabet[v])
	}

	b := make([]byte, maxLen)
	i := maxLen
	for v > 0 {
		i--
		b[i] = alphabet[v%base]
		v /= base
	}
	return string(b[i:])
}

// decodeBase decodes s using a lookup table, rejecting unknown characters,
// over-long input and values that do not fit in 64 bits.
func decodeBase(s string, table *[256]byte, base uint64, maxLen int, invalid error) (uint64, error) {
	if len(s) == 0 {
		return 0, ErrEmptyEncoding
	}
	if len(s) > maxLen {
		return 0, ErrStringTooLong
	}

	var v uint64
	for i := 0; i < len(s); i++ {
		d := table[s[i]]
		if d == invalidDigit {
			return 0, invalid
		}
		if v > (math.MaxUint64-uint64(d))/base {
			return 0, ErrIntegerOverflow
		}
		v = v*base + uint64(d)
	}
	return v, nil
}

func encodeBase58(v uint64) string {
	return encodeBase(v, encodeBase58Map, MaxBase58Len)
}

func decodeBase58(s string) (uint64, error) {
	return decodeBase(s, &decodeBase58Map, 58, MaxBase58Len, ErrInvalidBase58)
}

func encodeBase62(v uint64) string {
	return encodeBase(v, encodeBase62Map, MaxBase62Len)
}

func decodeBase62(s string) (uint64, error) {
	return decodeBase(s, &decodeBase62Map, 62, MaxBase62Len, ErrInvalidBase62)
}

// encodeHex uses 4-bit shifts instead of division.
func encodeHex(v uint64) string {
	if v == 0 {
		return "0"
	}
	b := make([]byte, MaxHexLen)
	i := MaxHexLen
	for v > 0 {
		i--
		b[i] = encodeHexMap[v&0x0F]
		v >>= 4
	}
	return string(b[i:])
}

func decodeHex(s string) (uint64, error) {
	return decodeBase(s, &decodeHexMap, 16, MaxHexLen, ErrInvalidHex)
}
