package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the content slot of a record: a text body for files, a listing
// placeholder for folders. Any other JSON value is kept verbatim.
type Payload struct {
	text   string
	isText bool
	raw    json.RawMessage
}

// TextPayload returns a payload holding file content.
func TextPayload(s string) Payload {
	return Payload{text: s, isText: true}
}

// ListingPayload returns the empty folder listing.
func ListingPayload() Payload {
	return Payload{}
}

// Text returns the content and whether the payload is text at all.
func (p Payload) Text() (string, bool) {
	return p.text, p.isText
}

// IsText reports whether the payload is a string.
func (p Payload) IsText() bool {
	return p.isText
}

func (p Payload) clone() Payload {
	if p.raw != nil {
		p.raw = append(json.RawMessage(nil), p.raw...)
	}
	return p
}

// MarshalJSON encodes text as a JSON string and a listing as [].
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.isText {
		return json.Marshal(p.text)
	}
	if p.raw != nil {
		return p.raw, nil
	}
	return []byte("[]"), nil
}

// UnmarshalJSON accepts a string or any other JSON value.
func (p *Payload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		*p = TextPayload(s)
		return nil
	}
	if !json.Valid(b) {
		return fmt.Errorf("decode payload: invalid JSON")
	}
	*p = Payload{raw: append(json.RawMessage(nil), b...)}
	return nil
}
