// ABOUTME: Composite key encoding tests: ordering, round trips, prefix bounds

package keys

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodedOrderMatchesTypedOrder(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	ordered := [][]Part{
		{Bytes([]byte("acct")), Int64(-50)},
		{Bytes([]byte("acct")), Int64(-1)},
		{Bytes([]byte("acct")), Int64(0)},
		{Bytes([]byte("acct")), Int64(3)},
		{Bytes([]byte("acct")), Int64(1 << 40)},
		{Bytes([]byte("acct")), Uint64(0)},
		{Bytes([]byte("acct~"))},
		{Bytes([]byte("event")), Time(base)},
		{Bytes([]byte("event")), Time(base.Add(time.Second))},
		{Bytes([]byte("event")), Time(base.Add(time.Hour))},
	}

	previous := Encode(ordered[0]...)
	for i := 1; i < len(ordered); i++ {
		current := Encode(ordered[i]...)
		if bytes.Compare(previous, current) >= 0 {
			t.Fatalf("entry %d does not sort after its predecessor:\n% x\n% x", i, previous, current)
		}
		previous = current
	}
}

func TestRoundTrip(t *testing.T) {
	parts := []Part{
		Bytes([]byte("user")),
		Int64(-42),
		Uint64(99),
		Time(time.Unix(1234567890, 0)),
		Bytes([]byte{0x00, 0x41, 0xFF}),
	}

	decoded, err := Decode(Encode(parts...))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(parts) {
		t.Fatalf("decoded %d parts, want %d", len(decoded), len(parts))
	}
	if string(decoded[0].Str) != "user" {
		t.Errorf("part 0 = %q", decoded[0].Str)
	}
	if decoded[1].I64 != -42 {
		t.Errorf("part 1 = %d", decoded[1].I64)
	}
	if decoded[2].U64 != 99 {
		t.Errorf("part 2 = %d", decoded[2].U64)
	}
	if decoded[3].Time.Unix() != 1234567890 {
		t.Errorf("part 3 = %v", decoded[3].Time)
	}
	if !bytes.Equal(decoded[4].Str, []byte{0x00, 0x41, 0xFF}) {
		t.Errorf("part 4 = % x", decoded[4].Str)
	}
}

func TestEscapedBytesStillOrder(t *testing.T) {
	low := Encode(Bytes([]byte{0x00}))
	mid := Encode(Bytes([]byte{0x00, 0x01}))
	high := Encode(Bytes([]byte{0x01}))

	if bytes.Compare(low, mid) >= 0 {
		t.Error("0x00 must sort before 0x00 0x01")
	}
	if bytes.Compare(mid, high) >= 0 {
		t.Error("0x00 0x01 must sort before 0x01")
	}
}

func TestEscapedTerminatorBytes(t *testing.T) {
	// Embedded 0x00 is escaped as 0x00 0xFF on encode and 0xFF is
	// stored as is; the decoder must not mistake either for the
	// terminator
	cases := [][][]byte{
		{{0x00}},
		{{0x00, 0x41, 0xFF}},
		{{0xFE}, {0x00}},
		{{0xFF, 0xFF, 0x00}, {0x42}},
	}
	for _, raw := range cases {
		parts := make([]Part, len(raw))
		for i, b := range raw {
			parts[i] = Bytes(b)
		}
		decoded, err := Decode(Encode(parts...))
		if err != nil {
			t.Fatalf("decode of % x: %v", raw, err)
		}
		if len(decoded) != len(raw) {
			t.Fatalf("decoded %d parts from % x, want %d", len(decoded), raw, len(raw))
		}
		for i, b := range raw {
			if !bytes.Equal(decoded[i].Str, b) {
				t.Fatalf("part %d = % x, want % x", i, decoded[i].Str, b)
			}
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		{99},                // unknown type tag
		{TypeInt64, 1, 2},   // truncated integer
		{TypeBytes, 'a'},    // unterminated byte string
	}
	for _, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Errorf("Decode(% x) should fail", data)
		}
	}
}

func TestPrefixEnd(t *testing.T) {
	prefix := Encode(Bytes([]byte("logs")))
	end := PrefixEnd(prefix)
	if end == nil {
		t.Fatal("expected a finite upper bound")
	}

	inside := Encode(Bytes([]byte("logs")), Uint64(7))
	if !(bytes.Compare(prefix, inside) <= 0 && bytes.Compare(inside, end) < 0) {
		t.Fatalf("key inside the prefix falls outside [prefix, end)")
	}

	outside := Encode(Bytes([]byte("metrics")))
	if bytes.Compare(outside, end) < 0 {
		t.Fatalf("key outside the prefix falls inside the bound")
	}

	if PrefixEnd([]byte{0xFF, 0xFF}) != nil {
		t.Error("an all-0xFF prefix has no upper bound")
	}
}
