// ABOUTME: Payload records carried inside page files
// ABOUTME: Envelope wraps one node image; Metadata is the single committed root record

package page

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nainya/grebedb/pkg/btree"
)

// Envelope is the persisted wrapper around one node. A deleted
// envelope has no content and marks its ID as recyclable.
type Envelope struct {
	UUID     uuid.UUID
	ID       uint64
	Revision uint64
	Deleted  bool
	Content  *btree.Node
}

// EncodeMsgpack writes the content record: uuid, id, revision,
// deleted, and content when present.
func (e *Envelope) EncodeMsgpack(enc *msgpack.Encoder) error {
	fields := 4
	if e.Content != nil {
		fields = 5
	}
	if err := enc.EncodeMapLen(fields); err != nil {
		return err
	}
	if err := enc.EncodeString("uuid"); err != nil {
		return err
	}
	if err := encodeUUID(enc, e.UUID); err != nil {
		return err
	}
	if err := enc.EncodeString("id"); err != nil {
		return err
	}
	if err := enc.EncodeUint64(e.ID); err != nil {
		return err
	}
	if err := enc.EncodeString("revision"); err != nil {
		return err
	}
	if err := enc.EncodeUint64(e.Revision); err != nil {
		return err
	}
	if err := enc.EncodeString("deleted"); err != nil {
		return err
	}
	if err := enc.EncodeBool(e.Deleted); err != nil {
		return err
	}
	if e.Content != nil {
		if err := enc.EncodeString("content"); err != nil {
			return err
		}
		if err := e.Content.EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a content record written by EncodeMsgpack.
func (e *Envelope) DecodeMsgpack(dec *msgpack.Decoder) error {
	entries, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	*e = Envelope{}
	for i := 0; i < entries; i++ {
		field, err := dec.DecodeString()
		if err != nil {
			return err
		}
		switch field {
		case "uuid":
			if e.UUID, err = decodeUUID(dec); err != nil {
				return err
			}
		case "id":
			if e.ID, err = dec.DecodeUint64(); err != nil {
				return err
			}
		case "revision":
			if e.Revision, err = dec.DecodeUint64(); err != nil {
				return err
			}
		case "deleted":
			if e.Deleted, err = dec.DecodeBool(); err != nil {
				return err
			}
		case "content":
			e.Content = new(btree.Node)
			if err = e.Content.DecodeMsgpack(dec); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected content field %q", field)
		}
	}
	return nil
}

// Metadata is the database's single committed record: instance UUID,
// committed revision, ID allocation state, and the root page.
type Metadata struct {
	UUID      uuid.UUID
	Revision  uint64
	IDCounter uint64
	FreeIDs   []uint64
	RootID    uint64 // 0 means no tree has been created
}

// EncodeMsgpack writes the metadata record: uuid, revision,
// id_counter, free_id_list, and root_id when a tree exists.
func (m *Metadata) EncodeMsgpack(enc *msgpack.Encoder) error {
	fields := 4
	if m.RootID != 0 {
		fields = 5
	}
	if err := enc.EncodeMapLen(fields); err != nil {
		return err
	}
	if err := enc.EncodeString("uuid"); err != nil {
		return err
	}
	if err := encodeUUID(enc, m.UUID); err != nil {
		return err
	}
	if err := enc.EncodeString("revision"); err != nil {
		return err
	}
	if err := enc.EncodeUint64(m.Revision); err != nil {
		return err
	}
	if err := enc.EncodeString("id_counter"); err != nil {
		return err
	}
	if err := enc.EncodeUint64(m.IDCounter); err != nil {
		return err
	}
	if err := enc.EncodeString("free_id_list"); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(m.FreeIDs)); err != nil {
		return err
	}
	for _, id := range m.FreeIDs {
		if err := enc.EncodeUint64(id); err != nil {
			return err
		}
	}
	if m.RootID != 0 {
		if err := enc.EncodeString("root_id"); err != nil {
			return err
		}
		if err := enc.EncodeUint64(m.RootID); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a metadata record written by EncodeMsgpack.
func (m *Metadata) DecodeMsgpack(dec *msgpack.Decoder) error {
	entries, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	*m = Metadata{}
	for i := 0; i < entries; i++ {
		field, err := dec.DecodeString()
		if err != nil {
			return err
		}
		switch field {
		case "uuid":
			if m.UUID, err = decodeUUID(dec); err != nil {
				return err
			}
		case "revision":
			if m.Revision, err = dec.DecodeUint64(); err != nil {
				return err
			}
		case "id_counter":
			if m.IDCounter, err = dec.DecodeUint64(); err != nil {
				return err
			}
		case "free_id_list":
			count, err := dec.DecodeArrayLen()
			if err != nil {
				return err
			}
			m.FreeIDs = make([]uint64, count)
			for j := 0; j < count; j++ {
				if m.FreeIDs[j], err = dec.DecodeUint64(); err != nil {
					return err
				}
			}
		case "root_id":
			if m.RootID, err = dec.DecodeUint64(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected metadata field %q", field)
		}
	}
	return nil
}
