package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ReadInt32 decodes a little-endian int32 at off, returning the offset
// immediately past it.
func ReadInt32(b []byte, off int) (int32, int, error) {
	if off+4 > len(b) {
		return 0, off, ErrTruncatedFrame
	}
	return int32(binary.LittleEndian.Uint32(b[off : off+4])), off + 4, nil
}

// ReadInt64 decodes a little-endian int64 at off.
func ReadInt64(b []byte, off int) (int64, int, error) {
	if off+8 > len(b) {
		return 0, off, ErrTruncatedFrame
	}
	return int64(binary.LittleEndian.Uint64(b[off : off+8])), off + 8, nil
}

// ReadUint32 decodes a little-endian uint32 at off.
func ReadUint32(b []byte, off int) (uint32, int, error) {
	if off+4 > len(b) {
		return 0, off, ErrTruncatedFrame
	}
	return binary.LittleEndian.Uint32(b[off : off+4]), off + 4, nil
}

// ReadCString scans forward from off to the next NUL byte and returns the
// UTF-8 string before it, advancing past the NUL.
func ReadCString(b []byte, off int) (string, int, error) {
	end := off
	for end < len(b) && b[end] != 0x00 {
		end++
	}
	if end >= len(b) {
		return "", off, ErrTruncatedFrame
	}
	s := b[off:end]
	if !utf8.Valid(s) {
		return "", off, ErrInvalidUTF8
	}
	return string(s), end + 1, nil
}

// ReadDocument peeks the int32 length prefix at off, consumes exactly that
// many bytes, and hands them to the BSON collaborator for validation.
func ReadDocument(b []byte, off int) (bson.Raw, int, error) {
	length, _, err := ReadInt32(b, off)
	if err != nil {
		return nil, off, ErrTruncatedFrame
	}
	if length < 5 {
		return nil, off, ErrMalformedDocument
	}
	end := off + int(length)
	if end < off || end > len(b) {
		return nil, off, ErrTruncatedFrame
	}
	raw := bson.Raw(b[off:end])
	if err := raw.Validate(); err != nil {
		return nil, off, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return raw, end, nil
}

// AppendInt32 appends v's little-endian encoding to buf.
func AppendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

// AppendInt64 appends v's little-endian encoding to buf.
func AppendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

// AppendUint32 appends v's little-endian encoding to buf.
func AppendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendCString appends s followed by a trailing NUL.
func AppendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0x00)
}

// AppendDocument appends doc's raw BSON blob as returned by the BSON encoder.
func AppendDocument(buf []byte, doc bson.Raw) []byte {
	return append(buf, doc...)
}

// MarshalDocument encodes doc via the BSON collaborator into its raw blob.
func MarshalDocument(doc any) (bson.Raw, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return bson.Raw(data), nil
}
