package idalloc

import (
	"errors"
	"math"
	"testing"
)

// FuzzBase58RoundTrip tests Base58 encoding/decoding round-trip.
func FuzzBase58RoundTrip(f *testing.F) {
	seeds := []uint64{
		0,
		1,
		57, // max single digit
		58, // two digits
		1<<41 - 1,
		math.MaxInt64,
		math.MaxUint64,
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, original uint64) {
		encoded := encodeBase58(original)
		if len(encoded) == 0 || len(encoded) > MaxBase58Len {
			t.Fatalf("encodeBase58(%d) produced %q", original, encoded)
		}

		decoded, err := decodeBase58(encoded)
		if err != nil {
			t.Fatalf("decodeBase58() failed for %d (encoded: %s): %v", original, encoded, err)
		}
		if decoded != original {
			t.Errorf("Base58 round-trip failed: original=%d, decoded=%d (encoded: %s)",
				original, decoded, encoded)
		}
	})
}

// FuzzBase62RoundTrip tests Base62 encoding/decoding round-trip.
func FuzzBase62RoundTrip(f *testing.F) {
	seeds := []uint64{0, 1, 61, 62, 1<<41 - 1, math.MaxInt64, math.MaxUint64}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, original uint64) {
		encoded := encodeBase62(original)
		if len(encoded) == 0 || len(encoded) > MaxBase62Len {
			t.Fatalf("encodeBase62(%d) produced %q", original, encoded)
		}

		decoded, err := decodeBase62(encoded)
		if err != nil {
			t.Fatalf("decodeBase62() failed for %d (encoded: %s): %v", original, encoded, err)
		}
		if decoded != original {
			t.Errorf("Base62 round-trip failed: original=%d, decoded=%d (encoded: %s)",
				original, decoded, encoded)
		}
	})
}

// FuzzHexRoundTrip tests hex encoding/decoding round-trip.
func FuzzHexRoundTrip(f *testing.F) {
	seeds := []uint64{0, 15, 16, 0xdeadbeef, math.MaxUint64}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, original uint64) {
		encoded := encodeHex(original)
		decoded, err := decodeHex(encoded)
		if err != nil {
			t.Fatalf("decodeHex() failed for %d (encoded: %s): %v", original, encoded, err)
		}
		if decoded != original {
			t.Errorf("Hex round-trip failed: original=%d, decoded=%d (encoded: %s)",
				original, decoded, encoded)
		}
	})
}

// FuzzInvalidEncodings feeds arbitrary strings to every decoder. They must
// either fail with a package error or decode to a value that re-encodes to
// the same canonical string.
func FuzzInvalidEncodings(f *testing.F) {
	seeds := []string{"", "0", "1", "zz", "ZZZZZZZZZZZ", "O0Il", "ffffffffffffffff", "-1", "héllo"}
	for _, seed := range seeds {
		f.Add(seed)
	}

	known := []error{ErrEmptyEncoding, ErrStringTooLong, ErrIntegerOverflow, ErrInvalidBase58, ErrInvalidBase62, ErrInvalidHex}
	isKnown := func(err error) bool {
		for _, k := range known {
			if errors.Is(err, k) {
				return true
			}
		}
		return false
	}

	f.Fuzz(func(t *testing.T, input string) {
		decoders := []struct {
			name   string
			decode func(string) (uint64, error)
			encode func(uint64) string
		}{
			{"base58", decodeBase58, encodeBase58},
			{"base62", decodeBase62, encodeBase62},
		}

		for _, d := range decoders {
			v, err := d.decode(input)
			if err != nil {
				if !isKnown(err) {
					t.Errorf("%s decode(%q) returned unexpected error %v", d.name, input, err)
				}
				continue
			}
			// leading zero digits are the only non-canonical form
			if back, err := d.decode(d.encode(v)); err != nil || back != v {
				t.Errorf("%s re-encode of %q failed: (%d, %v)", d.name, input, back, err)
			}
		}

		if _, err := decodeHex(input); err != nil && !isKnown(err) {
			t.Errorf("hex decode(%q) returned unexpected error %v", input, err)
		}
	})
}
