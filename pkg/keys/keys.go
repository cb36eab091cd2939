// ABOUTME: Order-preserving composite key encoding for the opaque-key store
// ABOUTME: Encoded keys compare bytewise in the same order as their typed parts

package keys

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Part types for composite keys
const (
	TypeBytes  = 1
	TypeInt64  = 2
	TypeUint64 = 3
	TypeTime   = 4 // stored as a sign-flipped Unix timestamp
)

// Part is a single typed component of a composite key.
type Part struct {
	Type uint8
	Str  []byte
	I64  int64
	U64  uint64
	Time time.Time
}

// Bytes creates a byte-string part.
func Bytes(data []byte) Part {
	return Part{Type: TypeBytes, Str: data}
}

// Int64 creates a signed integer part.
func Int64(i int64) Part {
	return Part{Type: TypeInt64, I64: i}
}

// Uint64 creates an unsigned integer part.
func Uint64(u uint64) Part {
	return Part{Type: TypeUint64, U64: u}
}

// Time creates a timestamp part with second precision.
func Time(t time.Time) Part {
	return Part{Type: TypeTime, Time: t}
}

// Encode encodes parts so that the byte comparison the tree performs
// matches the natural ordering of the typed values.
func Encode(parts ...Part) []byte {
	out := make([]byte, 0, 64)
	for _, p := range parts {
		out = append(out, p.Type)

		switch p.Type {
		case TypeInt64:
			// Flipping the sign bit makes negative values sort first
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(p.I64)+(1<<63))
			out = append(out, buf[:]...)

		case TypeUint64:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], p.U64)
			out = append(out, buf[:]...)

		case TypeTime:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(p.Time.Unix())+(1<<63))
			out = append(out, buf[:]...)

		case TypeBytes:
			out = append(out, escape(p.Str)...)
			out = append(out, 0)

		default:
			panic(fmt.Sprintf("unknown key part type: %d", p.Type))
		}
	}
	return out
}

// PrefixEnd returns the smallest key greater than every key starting
// with the encoded prefix, suitable as an exclusive cursor upper
// bound. It returns nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// escape rewrites a 0x00 content byte as 0x00 0xFF so the bare 0x00
// terminator stays unambiguous. The escape starts with the byte it
// replaces, so bytewise comparison order is preserved.
func escape(s []byte) []byte {
	zeros := 0
	for _, b := range s {
		if b == 0 {
			zeros++
		}
	}
	if zeros == 0 {
		return s
	}

	out := make([]byte, 0, len(s)+zeros)
	for _, b := range s {
		if b == 0 {
			out = append(out, 0x00, 0xFF)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// unescape reverses escape.
func unescape(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == 0 && i+1 < len(s) && s[i+1] == 0xFF {
			i++
		}
	}
	return out
}

// Decode parses an encoded composite key back into its parts.
func Decode(data []byte) ([]Part, error) {
	parts := make([]Part, 0, 4)
	pos := 0

	for pos < len(data) {
		typ := data[pos]
		pos++

		switch typ {
		case TypeInt64, TypeTime:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("truncated part at offset %d", pos)
			}
			i := int64(binary.BigEndian.Uint64(data[pos:pos+8]) - (1 << 63))
			if typ == TypeInt64 {
				parts = append(parts, Int64(i))
			} else {
				parts = append(parts, Time(time.Unix(i, 0)))
			}
			pos += 8

		case TypeUint64:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("truncated part at offset %d", pos)
			}
			parts = append(parts, Uint64(binary.BigEndian.Uint64(data[pos:pos+8])))
			pos += 8

		case TypeBytes:
			// A 0x00 followed by 0xFF is an escaped content byte;
			// only a bare 0x00 terminates the string
			end := pos
			for end < len(data) {
				if data[end] != 0 {
					end++
					continue
				}
				if end+1 < len(data) && data[end+1] == 0xFF {
					end += 2
					continue
				}
				break
			}
			if end >= len(data) {
				return nil, fmt.Errorf("unterminated byte string at offset %d", pos)
			}
			parts = append(parts, Bytes(unescape(data[pos:end])))
			pos = end + 1

		default:
			return nil, fmt.Errorf("unknown part type %d at offset %d", typ, pos-1)
		}
	}
	return parts, nil
}
