// Package bundles implements ANS-104 bundle import and unbundling: a
// bounded worker pool that downloads bundle payloads and a second pool
// that parses them into individually addressable data items.
package bundles

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dev-protocol/ar-io-node/internal/models"
)

// sigMeta gives the wire lengths of a signature scheme's signature and
// owner (public key) fields.
type sigMeta struct {
	sigLen   int
	ownerLen int
}

// Signature scheme ids from the ANS-104 registry.
var sigSchemes = map[uint16]sigMeta{
	1: {sigLen: 512, ownerLen: 512}, // arweave (RSA-4096)
	2: {sigLen: 64, ownerLen: 32},   // ed25519
	3: {sigLen: 65, ownerLen: 65},   // ethereum (secp256k1)
	4: {sigLen: 64, ownerLen: 32},   // solana
}

const (
	bundleHeaderSize = 32
	bundleEntrySize  = 64
	// maxTagBytes bounds the Avro tag blob of one item; the protocol
	// allows 4096 bytes of tag data.
	maxTagBytes = 4096
)

// Item is one parsed data-item descriptor. The payload itself is not
// retained; Offset/Size locate the full item within the parent bundle.
type Item struct {
	ID            string
	Index         int
	Offset        int64
	Size          int64
	Target        string
	Anchor        string
	OwnerAddress  string
	SignatureType int
	Tags          []models.Tag
}

// ParseStream parses an ANS-104 bundle from a single-pass stream of the
// declared size into its ordered list of item descriptors. Any
// structural fault (truncation, bad counts, id/signature mismatch,
// malformed tags) fails the whole parse; no partial results are
// returned.
func ParseStream(r io.Reader, size int64) ([]Item, error) {
	cr := &countingReader{r: r}

	header := make([]byte, bundleHeaderSize)
	if _, err := io.ReadFull(cr, header); err != nil {
		return nil, fmt.Errorf("read bundle header: %w", err)
	}
	count, err := parseLE256(header)
	if err != nil {
		return nil, fmt.Errorf("bundle item count: %w", err)
	}
	// Every item needs a 64-byte entry, so the declared size bounds the
	// plausible count. Division, not multiplication: a crafted count near
	// the int64 limit must not wrap the comparison.
	if count < 0 || size < bundleHeaderSize || count > (size-bundleHeaderSize)/bundleEntrySize {
		return nil, fmt.Errorf("bundle item count %d exceeds bundle size %d", count, size)
	}

	type entry struct {
		size int64
		id   []byte
	}
	entries := make([]entry, count)
	buf := make([]byte, bundleEntrySize)
	for i := range entries {
		if _, err := io.ReadFull(cr, buf); err != nil {
			return nil, fmt.Errorf("read bundle entry %d: %w", i, err)
		}
		itemSize, err := parseLE256(buf[:32])
		if err != nil {
			return nil, fmt.Errorf("bundle entry %d size: %w", i, err)
		}
		entries[i] = entry{size: itemSize, id: bytes.Clone(buf[32:])}
	}

	items := make([]Item, 0, count)
	for i, e := range entries {
		start := cr.n
		item, err := parseItemHeader(cr, e.size)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if !bytes.Equal(item.rawID, e.id) {
			return nil, fmt.Errorf("item %d: id does not match signature digest", i)
		}

		// Skip the payload; descriptors carry offsets, not bytes.
		consumed := cr.n - start
		if consumed > e.size {
			return nil, fmt.Errorf("item %d: header (%d bytes) exceeds declared size %d", i, consumed, e.size)
		}
		if _, err := io.CopyN(io.Discard, cr, e.size-consumed); err != nil {
			return nil, fmt.Errorf("item %d: skip payload: %w", i, err)
		}

		items = append(items, Item{
			ID:            models.EncodeID(item.rawID),
			Index:         i,
			Offset:        start,
			Size:          e.size,
			Target:        item.target,
			Anchor:        item.anchor,
			OwnerAddress:  item.ownerAddress,
			SignatureType: int(item.sigType),
			Tags:          item.tags,
		})
	}

	if cr.n != size {
		return nil, fmt.Errorf("bundle size mismatch: declared %d, parsed %d", size, cr.n)
	}
	return items, nil
}

type itemHeader struct {
	rawID        []byte
	sigType      uint16
	target       string
	anchor       string
	ownerAddress string
	tags         []models.Tag
}

func parseItemHeader(r io.Reader, itemSize int64) (*itemHeader, error) {
	var sigTypeBuf [2]byte
	if _, err := io.ReadFull(r, sigTypeBuf[:]); err != nil {
		return nil, fmt.Errorf("read signature type: %w", err)
	}
	sigType := binary.LittleEndian.Uint16(sigTypeBuf[:])
	scheme, ok := sigSchemes[sigType]
	if !ok {
		return nil, fmt.Errorf("unknown signature type %d", sigType)
	}

	sig := make([]byte, scheme.sigLen)
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	id := sha256.Sum256(sig)

	owner := make([]byte, scheme.ownerLen)
	if _, err := io.ReadFull(r, owner); err != nil {
		return nil, fmt.Errorf("read owner: %w", err)
	}
	ownerHash := sha256.Sum256(owner)

	target, err := readOptionalField(r, "target")
	if err != nil {
		return nil, err
	}
	anchor, err := readOptionalField(r, "anchor")
	if err != nil {
		return nil, err
	}

	var counts [16]byte
	if _, err := io.ReadFull(r, counts[:]); err != nil {
		return nil, fmt.Errorf("read tag counts: %w", err)
	}
	tagCount := binary.LittleEndian.Uint64(counts[:8])
	tagBytesLen := binary.LittleEndian.Uint64(counts[8:])
	if tagBytesLen > maxTagBytes || int64(tagBytesLen) > itemSize {
		return nil, fmt.Errorf("tag data length %d out of range", tagBytesLen)
	}

	var tags []models.Tag
	if tagBytesLen > 0 {
		tagBytes := make([]byte, tagBytesLen)
		if _, err := io.ReadFull(r, tagBytes); err != nil {
			return nil, fmt.Errorf("read tag data: %w", err)
		}
		tags, err = decodeAvroTags(tagBytes)
		if err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if uint64(len(tags)) != tagCount {
		return nil, fmt.Errorf("tag count mismatch: declared %d, decoded %d", tagCount, len(tags))
	}

	return &itemHeader{
		rawID:        id[:],
		sigType:      sigType,
		target:       target,
		anchor:       anchor,
		ownerAddress: models.EncodeID(ownerHash[:]),
		tags:         tags,
	}, nil
}

// readOptionalField reads a presence byte and, when set, a 32-byte
// value, returning it base64url-encoded.
func readOptionalField(r io.Reader, name string) (string, error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return "", fmt.Errorf("read %s flag: %w", name, err)
	}
	switch flag[0] {
	case 0:
		return "", nil
	case 1:
		value := make([]byte, 32)
		if _, err := io.ReadFull(r, value); err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return models.EncodeID(value), nil
	default:
		return "", fmt.Errorf("invalid %s flag %d", name, flag[0])
	}
}

// decodeAvroTags decodes the Avro array-of-records tag encoding: blocks
// of (name bytes, value bytes) pairs, zigzag-varint framed, terminated
// by a zero block count.
func decodeAvroTags(data []byte) ([]models.Tag, error) {
	var tags []models.Tag
	pos := 0
	for {
		blockCount, err := readZigZagLong(data, &pos)
		if err != nil {
			return nil, err
		}
		if blockCount == 0 {
			break
		}
		if blockCount < 0 {
			// Negative count means the block's byte size follows.
			blockCount = -blockCount
			if _, err := readZigZagLong(data, &pos); err != nil {
				return nil, err
			}
		}
		for i := int64(0); i < blockCount; i++ {
			name, err := readAvroBytes(data, &pos)
			if err != nil {
				return nil, fmt.Errorf("tag name: %w", err)
			}
			value, err := readAvroBytes(data, &pos)
			if err != nil {
				return nil, fmt.Errorf("tag value: %w", err)
			}
			tags = append(tags, models.Tag{Name: name, Value: value})
		}
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after tag array", len(data)-pos)
	}
	return tags, nil
}

func readAvroBytes(data []byte, pos *int) ([]byte, error) {
	length, err := readZigZagLong(data, pos)
	if err != nil {
		return nil, err
	}
	if length < 0 || *pos+int(length) > len(data) {
		return nil, fmt.Errorf("bytes length %d out of range", length)
	}
	out := bytes.Clone(data[*pos : *pos+int(length)])
	*pos += int(length)
	return out, nil
}

func readZigZagLong(data []byte, pos *int) (int64, error) {
	var u uint64
	var shift uint
	for {
		if *pos >= len(data) {
			return 0, fmt.Errorf("truncated varint")
		}
		b := data[*pos]
		*pos++
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("varint overflow")
		}
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// parseLE256 reads a 32-byte little-endian unsigned integer that must
// fit in an int64. The format allows 256-bit values but nothing real
// approaches 2^63.
func parseLE256(buf []byte) (int64, error) {
	for _, b := range buf[8:] {
		if b != 0 {
			return 0, fmt.Errorf("value exceeds 64 bits")
		}
	}
	v := binary.LittleEndian.Uint64(buf[:8])
	if v > uint64(1)<<62 {
		return 0, fmt.Errorf("value %d out of range", v)
	}
	return int64(v), nil
}

// countingReader tracks how many bytes have been consumed from the
// underlying stream.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
