// ABOUTME: On-disk page envelope codec
// ABOUTME: Magic, compression flag, length-prefixed MessagePack payload, CRC-32C footer

package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// fileMagic opens every page and metadata file.
var fileMagic = []byte{0xFE, 0xC7, 0xF2, 0xE5, 0xE2, 0xE5, 0x00, 0x00}

const (
	flagUncompressed = 0x00
	flagZstd         = 0x01

	// magic(8) + flag(1) + length(8)
	headerSize = 17
	// CRC-32C of the uncompressed payload
	footerSize = 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CompressionLevel selects how page payloads are compressed.
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionVeryLow
	CompressionLow
	CompressionMedium
	CompressionHigh
)

func (l CompressionLevel) zstdLevel() (zstd.EncoderLevel, bool) {
	switch l {
	case CompressionVeryLow:
		return zstd.SpeedFastest, true
	case CompressionLow:
		return zstd.SpeedDefault, true
	case CompressionMedium:
		return zstd.SpeedBetterCompression, true
	case CompressionHigh:
		return zstd.SpeedBestCompression, true
	default:
		return 0, false
	}
}

// Codec serializes payload records into the page file envelope.
// A single codec is shared by all pages of one store.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec writing at the given compression level.
// Reading always accepts both compressed and uncompressed files.
func NewCodec(level CompressionLevel) (*Codec, error) {
	c := &Codec{}

	if lvl, ok := level.zstdLevel(); ok {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
		if err != nil {
			return nil, err
		}
		c.enc = enc
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		if c.enc != nil {
			c.enc.Close()
		}
		return nil, err
	}
	c.dec = dec
	return c, nil
}

// Close releases the compressor state.
func (c *Codec) Close() {
	if c.enc != nil {
		c.enc.Close()
	}
	c.dec.Close()
}

// Encode marshals payload into a complete page file image.
func (c *Codec) Encode(payload interface{}) ([]byte, error) {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	checksum := crc32.Checksum(body, castagnoli)

	flag := byte(flagUncompressed)
	stored := body
	if c.enc != nil {
		flag = flagZstd
		stored = c.enc.EncodeAll(body, nil)
	}

	out := make([]byte, 0, headerSize+len(stored)+footerSize)
	out = append(out, fileMagic...)
	out = append(out, flag)
	out = binary.BigEndian.AppendUint64(out, uint64(len(stored)))
	out = append(out, stored...)
	out = binary.BigEndian.AppendUint32(out, checksum)
	return out, nil
}

// Decode unmarshals a page file image into payload. It fails with
// ErrCorrupt on a bad magic, length, checksum, or payload, and with
// ErrUnsupportedCompression on an unknown compression flag.
func (c *Codec) Decode(data []byte, payload interface{}) error {
	if len(data) < headerSize+footerSize {
		return fmt.Errorf("%w: truncated file (%d bytes)", ErrCorrupt, len(data))
	}
	for i, b := range fileMagic {
		if data[i] != b {
			return fmt.Errorf("%w: bad magic", ErrCorrupt)
		}
	}

	flag := data[8]
	if flag != flagUncompressed && flag != flagZstd {
		return fmt.Errorf("%w: flag 0x%02x", ErrUnsupportedCompression, flag)
	}

	length := binary.BigEndian.Uint64(data[9:17])
	if uint64(len(data)) != headerSize+length+footerSize {
		return fmt.Errorf("%w: payload length %d does not match file size %d",
			ErrCorrupt, length, len(data))
	}

	body := data[headerSize : headerSize+length]
	if flag == flagZstd {
		decompressed, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		body = decompressed
	}

	stored := binary.BigEndian.Uint32(data[headerSize+length:])
	if crc32.Checksum(body, castagnoli) != stored {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	if err := msgpack.Unmarshal(body, payload); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", ErrCorrupt, err)
	}
	return nil
}

func encodeUUID(enc *msgpack.Encoder, u uuid.UUID) error {
	return enc.EncodeBytes(u[:])
}

func decodeUUID(dec *msgpack.Decoder) (uuid.UUID, error) {
	data, err := dec.DecodeBytes()
	if err != nil {
		return uuid.Nil, err
	}
	if len(data) != 16 {
		return uuid.Nil, fmt.Errorf("uuid field holds %d bytes", len(data))
	}
	var u uuid.UUID
	copy(u[:], data)
	return u, nil
}
