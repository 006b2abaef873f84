// Package models contains the record type shared by the client, the cache and the dev server.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Width is the number of positional slots in a wire record.
const Width = 14

// Wire slot positions of the fields this client understands.
const (
	FieldType     = 0
	FieldName     = 1
	FieldLocation = 2
	FieldData     = 3
	FieldCreated  = 8
	FieldEdited   = 9
	FieldSize     = 11
	FieldID       = 13
)

// FolderType is the type sentinel marking a directory record.
const FolderType = ".folder"

// ErrEmptyRecord is returned when a wire record is null or not an array.
var ErrEmptyRecord = errors.New("empty record")

var jsonNull = json.RawMessage("null")

// Record is a single file or folder in the remote store.
type Record struct {
	Type     string  // extension including the dot, or FolderType
	Name     string  // base name without extension
	Location string  // store-native absolute parent location
	Data     Payload // text content or folder listing
	Created  int64   // epoch millis
	Edited   int64   // epoch millis
	Size     int64
	ID       string

	// slots holds the raw wire array so unknown fields survive a round trip.
	slots []json.RawMessage
}

// IsFolder reports whether the record is a directory.
func (r *Record) IsFolder() bool {
	return r.Type == FolderType
}

// FileName returns name and extension joined.
func (r *Record) FileName() string {
	return r.Name + r.Type
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = r.Data.clone()
	if r.slots != nil {
		c.slots = make([]json.RawMessage, len(r.slots))
		for i, s := range r.slots {
			c.slots[i] = append(json.RawMessage(nil), s...)
		}
	}
	return &c
}

// Slot returns the raw wire value at index i, or null when unset.
func (r *Record) Slot(i int) json.RawMessage {
	if i < 0 || i >= len(r.slots) || r.slots[i] == nil {
		return jsonNull
	}
	return r.slots[i]
}

// MarshalJSON encodes the record as its positional wire array.
func (r Record) MarshalJSON() ([]byte, error) {
	n := Width
	if len(r.slots) > n {
		n = len(r.slots)
	}
	out := make([]json.RawMessage, n)
	for i := range out {
		if i < len(r.slots) && r.slots[i] != nil {
			out[i] = r.slots[i]
		} else {
			out[i] = jsonNull
		}
	}

	data, err := r.Data.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	out[FieldType] = quote(r.Type)
	out[FieldName] = quote(r.Name)
	out[FieldLocation] = quote(r.Location)
	out[FieldData] = data
	out[FieldCreated] = json.RawMessage(strconv.FormatInt(r.Created, 10))
	out[FieldEdited] = json.RawMessage(strconv.FormatInt(r.Edited, 10))
	out[FieldSize] = json.RawMessage(strconv.FormatInt(r.Size, 10))
	out[FieldID] = quote(r.ID)

	return json.Marshal(out)
}

// UnmarshalJSON decodes a positional wire array.
func (r *Record) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return ErrEmptyRecord
	}

	var slots []json.RawMessage
	if err := json.Unmarshal(b, &slots); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	for len(slots) < Width {
		slots = append(slots, nil)
	}

	var rec Record
	rec.slots = slots
	rec.Type = decodeString(slots[FieldType])
	rec.Name = decodeString(slots[FieldName])
	rec.Location = decodeString(slots[FieldLocation])
	rec.ID = decodeString(slots[FieldID])
	rec.Created = decodeInt(slots[FieldCreated])
	rec.Edited = decodeInt(slots[FieldEdited])
	rec.Size = decodeInt(slots[FieldSize])
	if err := rec.Data.UnmarshalJSON(orNull(slots[FieldData])); err != nil {
		return err
	}

	*r = rec
	return nil
}

// SetField assigns a wire value to slot i, updating the named field when the
// slot is one this client understands. Used when replaying update mutations.
func (r *Record) SetField(i int, value json.RawMessage) error {
	if i < 0 {
		return fmt.Errorf("field index %d out of range", i)
	}
	for len(r.slots) <= i || len(r.slots) < Width {
		r.slots = append(r.slots, nil)
	}
	r.slots[i] = append(json.RawMessage(nil), value...)

	switch i {
	case FieldType:
		r.Type = decodeString(value)
	case FieldName:
		r.Name = decodeString(value)
	case FieldLocation:
		r.Location = decodeString(value)
	case FieldData:
		return r.Data.UnmarshalJSON(orNull(value))
	case FieldCreated:
		r.Created = decodeInt(value)
	case FieldEdited:
		r.Edited = decodeInt(value)
	case FieldSize:
		r.Size = decodeInt(value)
	case FieldID:
		r.ID = decodeString(value)
	}
	return nil
}

// TextSize returns the length of s the way the store's clients count it
// (UTF-16 code units).
func TextSize(s string) int64 {
	return int64(len(utf16.Encode([]rune(s))))
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return jsonNull
	}
	return raw
}

func decodeString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func decodeInt(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return 0
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		raw = json.RawMessage(s)
	}
	if i, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return int64(f)
	}
	return 0
}
