// Package idalloc - id.go provides the ID type: decoding into its fields,
// text encodings, and JSON/SQL integration.

package idalloc

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ID is a minted identifier.
//
// The sign bit is always zero, so an ID always fits in a signed BIGINT column
// and in an int64.
//
// Example:
//
//	id, _ := gen.GenerateID()
//	p := id.Components()
//	fmt.Printf("dc=%d worker=%d seq=%d at %v\n", p.DatacenterID, p.WorkerID, p.Sequence, id.Time(idalloc.LayoutDefault, idalloc.Epoch))
type ID uint64

// Parts are the fields packed into an ID.
type Parts struct {
	// Timestamp is the offset in milliseconds from the allocator's epoch.
	Timestamp    int64 `json:"timestamp"`
	DatacenterID int64 `json:"datacenterId"`
	WorkerID     int64 `json:"workerId"`
	Sequence     int64 `json:"sequence"`
}

// UnixMilli converts the timestamp offset to milliseconds since the Unix epoch.
func (p Parts) UnixMilli(epoch int64) int64 {
	return p.Timestamp + epoch
}

// Decode splits the ID into its fields according to layout.
func (id ID) Decode(layout BitLayout) Parts {
	s := layout.CalculateShifts()
	v := uint64(id)
	return Parts{
		Timestamp:    int64(v>>s.TimestampShift) & s.MaxTimestamp,
		DatacenterID: int64(v>>s.DatacenterShift) & s.MaxDatacenter,
		WorkerID:     int64(v>>s.WorkerShift) & s.MaxWorker,
		Sequence:     int64(v) & s.MaxSequence,
	}
}

// Components decodes the ID using LayoutDefault. The sign bit, which no
// allocator sets, is ignored.
func (id ID) Components() Parts {
	v := uint64(id)
	return Parts{
		Timestamp:    int64(v>>TimestampShift) & MaxTimestamp,
		DatacenterID: int64(v>>DatacenterIDShift) & MaxDatacenterID,
		WorkerID:     int64(v>>WorkerIDShift) & MaxWorkerID,
		Sequence:     int64(v) & MaxSequence,
	}
}

// Compose packs p into an ID according to layout. It is the inverse of Decode.
//
// Every field must fit its width; out-of-range fields are rejected rather
// than masked.
func Compose(layout BitLayout, p Parts) (ID, error) {
	if err := layout.Validate(); err != nil {
		return 0, err
	}
	s := layout.CalculateShifts()

	fields := []struct {
		name  string
		value int64
		max   int64
	}{
		{"timestamp", p.Timestamp, s.MaxTimestamp},
		{"datacenter", p.DatacenterID, s.MaxDatacenter},
		{"worker", p.WorkerID, s.MaxWorker},
		{"sequence", p.Sequence, s.MaxSequence},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > f.max {
			return 0, fmt.Errorf("%s %d out of range [0, %d]", f.name, f.value, f.max)
		}
	}

	return ID(uint64(p.Timestamp)<<s.TimestampShift |
		uint64(p.DatacenterID)<<s.DatacenterShift |
		uint64(p.WorkerID)<<s.WorkerShift |
		uint64(p.Sequence)), nil
}

// Time returns the instant encoded in the ID.
func (id ID) Time(layout BitLayout, epoch int64) time.Time {
	return time.UnixMilli(id.Decode(layout).UnixMilli(epoch))
}

// Uint64 returns the ID as a uint64.
func (id ID) Uint64() uint64 {
	return uint64(id)
}

// Int64 returns the ID as an int64.
func (id ID) Int64() int64 {
	return int64(id)
}

// String returns the decimal representation.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Hex returns the lowercase hexadecimal representation.
func (id ID) Hex() string {
	return encodeHex(uint64(id))
}

// Base58 returns a Bitcoin-style base58 representation.
func (id ID) Base58() string {
	return encodeBase58(uint64(id))
}

// Base62 returns a URL-safe base62 representation (0-9, a-z, A-Z).
func (id ID) Base62() string {
	return encodeBase62(uint64(id))
}

// Format returns the ID in the named encoding.
//
// Supported formats: "decimal" (default), "hex", "base58", "base62".
func (id ID) Format(format string) string {
	switch format {
	case "hex", "x":
		return id.Hex()
	case "base58", "b58":
		return id.Base58()
	case "base62", "b62":
		return id.Base62()
	default:
		return id.String()
	}
}

// MarshalJSON encodes the ID as a JSON string.
//
// IDs exceed 2^53, the largest integer a JavaScript Number represents
// exactly, so they are never emitted as bare numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts both a quoted decimal string and a bare number.
func (id *ID) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	parsed, err := ParseString(str)
	if err != nil {
		return fmt.Errorf("invalid ID: %w", err)
	}
	*id = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Scan implements sql.Scanner. BIGINT, TEXT and NULL columns are accepted.
func (id *ID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*id = 0
	case int64:
		if v < 0 {
			return fmt.Errorf("cannot scan negative value %d into ID", v)
		}
		*id = ID(v)
	case []byte:
		parsed, err := ParseString(string(v))
		if err != nil {
			return err
		}
		*id = parsed
	case string:
		parsed, err := ParseString(v)
		if err != nil {
			return err
		}
		*id = parsed
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	return nil
}

// Value implements driver.Valuer, storing the ID as a BIGINT.
func (id ID) Value() (driver.Value, error) {
	if uint64(id) > math.MaxInt64 {
		return nil, fmt.Errorf("ID %d has the sign bit set", uint64(id))
	}
	return int64(id), nil
}

// ParseString parses a decimal string into an ID.
func ParseString(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// ParseHex parses a hexadecimal string (either case) into an ID.
func ParseHex(s string) (ID, error) {
	v, err := decodeHex(s)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// ParseBase58 parses a Bitcoin-style base58 string into an ID.
func ParseBase58(s string) (ID, error) {
	v, err := decodeBase58(s)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// ParseBase62 parses a base62 string into an ID.
func ParseBase62(s string) (ID, error) {
	v, err := decodeBase62(s)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}
