// ABOUTME: Codec tests: envelope layout, compression, and corruption handling

package page

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nainya/grebedb/pkg/btree"
)

func testEnvelope() *Envelope {
	return &Envelope{
		UUID:     uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		ID:       42,
		Revision: 7,
		Content: btree.NewLeaf(
			[][]byte{[]byte("alpha"), []byte("beta")},
			[][]byte{[]byte("1"), []byte("2")},
		),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	levels := []CompressionLevel{
		CompressionNone,
		CompressionVeryLow,
		CompressionLow,
		CompressionMedium,
		CompressionHigh,
	}

	for _, level := range levels {
		codec, err := NewCodec(level)
		if err != nil {
			t.Fatalf("codec for level %d: %v", level, err)
		}

		data, err := codec.Encode(testEnvelope())
		if err != nil {
			t.Fatalf("encode at level %d: %v", level, err)
		}

		decoded := new(Envelope)
		if err := codec.Decode(data, decoded); err != nil {
			t.Fatalf("decode at level %d: %v", level, err)
		}
		if decoded.ID != 42 || decoded.Revision != 7 || decoded.Deleted {
			t.Fatalf("level %d: decoded header fields %+v", level, decoded)
		}
		if decoded.Content == nil || len(decoded.Content.Keys) != 2 {
			t.Fatalf("level %d: content lost", level)
		}
		if string(decoded.Content.Keys[0]) != "alpha" {
			t.Fatalf("level %d: first key = %q", level, decoded.Content.Keys[0])
		}
		codec.Close()
	}
}

func TestCodecCrossCompression(t *testing.T) {
	// Files written compressed must decode with an uncompressed-writing codec
	writer, err := NewCodec(CompressionHigh)
	if err != nil {
		t.Fatalf("writer codec: %v", err)
	}
	defer writer.Close()
	reader, err := NewCodec(CompressionNone)
	if err != nil {
		t.Fatalf("reader codec: %v", err)
	}
	defer reader.Close()

	data, err := writer.Encode(testEnvelope())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[8] != flagZstd {
		t.Fatalf("compression flag = 0x%02x, want 0x01", data[8])
	}
	if err := reader.Decode(data, new(Envelope)); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCodecLayout(t *testing.T) {
	codec, err := NewCodec(CompressionNone)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	defer codec.Close()

	data, err := codec.Encode(testEnvelope())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !bytes.Equal(data[:8], fileMagic) {
		t.Fatalf("magic = % x", data[:8])
	}
	if data[8] != flagUncompressed {
		t.Fatalf("flag = 0x%02x", data[8])
	}
	length := binary.BigEndian.Uint64(data[9:17])
	if uint64(len(data)) != headerSize+length+footerSize {
		t.Fatalf("length field %d inconsistent with file size %d", length, len(data))
	}
}

func TestCodecRejectsBadMagic(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	data, _ := codec.Encode(testEnvelope())
	data[0] ^= 0xFF
	if err := codec.Decode(data, new(Envelope)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for bad magic, got %v", err)
	}
}

func TestCodecRejectsBadChecksum(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	data, _ := codec.Encode(testEnvelope())
	data[len(data)-1] ^= 0xFF
	if err := codec.Decode(data, new(Envelope)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for bad checksum, got %v", err)
	}
}

func TestCodecRejectsFlippedPayload(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	data, _ := codec.Encode(testEnvelope())
	data[headerSize+3] ^= 0xFF
	if err := codec.Decode(data, new(Envelope)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for flipped payload, got %v", err)
	}
}

func TestCodecRejectsUnknownFlag(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	data, _ := codec.Encode(testEnvelope())
	data[8] = 0x7F
	if err := codec.Decode(data, new(Envelope)); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected ErrUnsupportedCompression, got %v", err)
	}
}

func TestCodecRejectsTruncation(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	data, _ := codec.Encode(testEnvelope())
	for _, cut := range []int{0, 5, headerSize, len(data) - 1} {
		if err := codec.Decode(data[:cut], new(Envelope)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt at cut %d, got %v", cut, err)
		}
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	codec, _ := NewCodec(CompressionLow)
	defer codec.Close()

	meta := &Metadata{
		UUID:      uuid.New(),
		Revision:  12,
		IDCounter: 99,
		FreeIDs:   []uint64{3, 8, 21},
		RootID:    5,
	}
	data, err := codec.Encode(meta)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded := new(Metadata)
	if err := codec.Decode(data, decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.UUID != meta.UUID || decoded.Revision != 12 || decoded.IDCounter != 99 || decoded.RootID != 5 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if len(decoded.FreeIDs) != 3 || decoded.FreeIDs[2] != 21 {
		t.Fatalf("free list = %v", decoded.FreeIDs)
	}
}

func TestMetadataOmitsAbsentRoot(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	meta := &Metadata{UUID: uuid.New(), Revision: 0, IDCounter: 1}
	data, err := codec.Encode(meta)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Contains(data, []byte("root_id")) {
		t.Fatal("root_id must be omitted when no tree exists")
	}

	decoded := new(Metadata)
	if err := codec.Decode(data, decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RootID != 0 {
		t.Fatalf("decoded root id = %d", decoded.RootID)
	}
}

func TestDeletedEnvelopeOmitsContent(t *testing.T) {
	codec, _ := NewCodec(CompressionNone)
	defer codec.Close()

	env := &Envelope{UUID: uuid.New(), ID: 9, Revision: 3, Deleted: true}
	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded := new(Envelope)
	if err := codec.Decode(data, decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Deleted || decoded.Content != nil {
		t.Fatalf("decoded = %+v", decoded)
	}
}
