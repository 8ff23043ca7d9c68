package wire

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// InsertRequest is the decoded body of an OP_INSERT message.
type InsertRequest struct {
	Flags              int32
	FullCollectionName string
	Documents          []bson.Raw
}

// DecodeInsert decodes an OP_INSERT body; documents fill the frame to its
// end, so a short final document is TrailingGarbage rather than truncation.
func DecodeInsert(f Frame) (InsertRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req InsertRequest
	var err error

	req.Flags, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.FullCollectionName, off, err = ReadCString(b, off)
	if err != nil {
		return req, err
	}
	for off < len(b) {
		var doc bson.Raw
		doc, off, err = ReadDocument(b, off)
		if errors.Is(err, ErrTruncatedFrame) {
			return req, ErrTrailingGarbage
		}
		if err != nil {
			return req, err
		}
		req.Documents = append(req.Documents, doc)
	}
	if len(req.Documents) == 0 {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

// EncodeInsert is the inverse of DecodeInsert.
func EncodeInsert(req InsertRequest) []byte {
	buf := make([]byte, 0, 32)
	buf = AppendInt32(buf, req.Flags)
	buf = AppendCString(buf, req.FullCollectionName)
	for _, doc := range req.Documents {
		buf = AppendDocument(buf, doc)
	}
	return buf
}

// UpdateRequest is the decoded body of an OP_UPDATE message.
type UpdateRequest struct {
	FullCollectionName string
	Flags              int32
	Selector           bson.Raw
	Update             bson.Raw
}

const (
	UpdateFlagUpsert int32 = 1 << 0
	UpdateFlagMulti  int32 = 1 << 1
)

// DecodeUpdate decodes an OP_UPDATE body.
func DecodeUpdate(f Frame) (UpdateRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req UpdateRequest
	var err error

	_, off, err = ReadInt32(b, off) // zero field, ignored
	if err != nil {
		return req, err
	}
	req.FullCollectionName, off, err = ReadCString(b, off)
	if err != nil {
		return req, err
	}
	req.Flags, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.Selector, off, err = ReadDocument(b, off)
	if err != nil {
		return req, err
	}
	req.Update, off, err = ReadDocument(b, off)
	if err != nil {
		return req, err
	}
	if off != len(b) {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

// EncodeUpdate is the inverse of DecodeUpdate.
func EncodeUpdate(req UpdateRequest) []byte {
	buf := make([]byte, 0, 32)
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, req.FullCollectionName)
	buf = AppendInt32(buf, req.Flags)
	buf = AppendDocument(buf, req.Selector)
	buf = AppendDocument(buf, req.Update)
	return buf
}

// DeleteRequest is the decoded body of an OP_DELETE message.
type DeleteRequest struct {
	FullCollectionName string
	Flags              int32
	Documents          []bson.Raw
}

const DeleteFlagSingleRemove int32 = 1 << 0

// DecodeDelete decodes an OP_DELETE body; documents fill the frame to its end.
func DecodeDelete(f Frame) (DeleteRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req DeleteRequest
	var err error

	_, off, err = ReadInt32(b, off) // zero field, ignored
	if err != nil {
		return req, err
	}
	req.FullCollectionName, off, err = ReadCString(b, off)
	if err != nil {
		return req, err
	}
	req.Flags, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	for off < len(b) {
		var doc bson.Raw
		doc, off, err = ReadDocument(b, off)
		if err != nil {
			return req, err
		}
		req.Documents = append(req.Documents, doc)
	}
	if len(req.Documents) == 0 {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

// EncodeDelete is the inverse of DecodeDelete.
func EncodeDelete(req DeleteRequest) []byte {
	buf := make([]byte, 0, 32)
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, req.FullCollectionName)
	buf = AppendInt32(buf, req.Flags)
	for _, doc := range req.Documents {
		buf = AppendDocument(buf, doc)
	}
	return buf
}

// GetMoreRequest is the decoded body of an OP_GET_MORE message.
type GetMoreRequest struct {
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

// DecodeGetMore decodes an OP_GET_MORE body.
func DecodeGetMore(f Frame) (GetMoreRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req GetMoreRequest
	var err error

	_, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.FullCollectionName, off, err = ReadCString(b, off)
	if err != nil {
		return req, err
	}
	req.NumberToReturn, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.CursorID, off, err = ReadInt64(b, off)
	if err != nil {
		return req, err
	}
	if off != len(b) {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

// EncodeGetMore is the inverse of DecodeGetMore.
func EncodeGetMore(req GetMoreRequest) []byte {
	buf := make([]byte, 0, 24)
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, req.FullCollectionName)
	buf = AppendInt32(buf, req.NumberToReturn)
	buf = AppendInt64(buf, req.CursorID)
	return buf
}

// KillCursorsRequest is the decoded body of an OP_KILL_CURSORS message.
type KillCursorsRequest struct {
	CursorIDs []int64
}

// DecodeKillCursors decodes an OP_KILL_CURSORS body.
func DecodeKillCursors(f Frame) (KillCursorsRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req KillCursorsRequest
	var err error

	_, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	n, off2, err := ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	off = off2
	if n < 0 {
		return req, ErrMalformedDocument
	}
	for i := int32(0); i < n; i++ {
		var id int64
		id, off, err = ReadInt64(b, off)
		if err != nil {
			return req, err
		}
		req.CursorIDs = append(req.CursorIDs, id)
	}
	if off != len(b) {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

// EncodeKillCursors is the inverse of DecodeKillCursors.
func EncodeKillCursors(req KillCursorsRequest) []byte {
	buf := make([]byte, 0, 16+8*len(req.CursorIDs))
	buf = AppendInt32(buf, 0)
	buf = AppendInt32(buf, int32(len(req.CursorIDs)))
	for _, id := range req.CursorIDs {
		buf = AppendInt64(buf, id)
	}
	return buf
}
