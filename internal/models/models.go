// Package models holds the data types shared across the retrieval core.
package models

import (
	"encoding/base64"
	"fmt"
)

// IDLength is the decoded byte length of a content identifier.
const IDLength = 32

// EncodeID returns the base64url (unpadded) form of a raw 32-byte identifier.
func EncodeID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeID decodes a base64url content identifier and validates its length.
func DecodeID(id string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("decode id %q: %w", id, err)
	}
	if len(raw) != IDLength {
		return nil, fmt.Errorf("id %q: expected %d bytes, got %d", id, IDLength, len(raw))
	}
	return raw, nil
}

// IsValidID reports whether id is a well-formed content identifier.
func IsValidID(id string) bool {
	_, err := DecodeID(id)
	return err == nil
}

// Tag is one name/value byte pair attached to a data item. Order within
// an item is significant and preserved from the wire encoding.
type Tag struct {
	Name  []byte
	Value []byte
}

// DataItem is one logical unit extracted from a bundle. Produced by the
// unbundler; ownership transfers to the consumer on emission.
type DataItem struct {
	ID       string
	Index    int
	ParentID string
	// Offset is the byte offset of the item within its parent bundle.
	Offset int64
	Size   int64
	Tags   []Tag
	// OwnerAddress is the base64url SHA-256 of the signing key.
	OwnerAddress  string
	SignatureType int
}
