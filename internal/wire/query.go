package wire

import "go.mongodb.org/mongo-driver/v2/bson"

// QueryRequest is the decoded body of an OP_QUERY message.
type QueryRequest struct {
	Flags                int32
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                bson.Raw
	ReturnFieldsSelector bson.Raw // nil unless present
}

// DecodeQuery decodes an OP_QUERY body. f.Raw must start at HeaderSize.
func DecodeQuery(f Frame) (QueryRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req QueryRequest
	var err error

	req.Flags, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.FullCollectionName, off, err = ReadCString(b, off)
	if err != nil {
		return req, err
	}
	req.NumberToSkip, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.NumberToReturn, off, err = ReadInt32(b, off)
	if err != nil {
		return req, err
	}
	req.Query, off, err = ReadDocument(b, off)
	if err != nil {
		return req, err
	}
	if off < len(b) {
		req.ReturnFieldsSelector, off, err = ReadDocument(b, off)
		if err != nil {
			return req, err
		}
	}
	if off != len(b) {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

// EncodeQuery is the inverse of DecodeQuery, producing a body (no header).
func EncodeQuery(req QueryRequest) []byte {
	buf := make([]byte, 0, 32+len(req.Query))
	buf = AppendInt32(buf, req.Flags)
	buf = AppendCString(buf, req.FullCollectionName)
	buf = AppendInt32(buf, req.NumberToSkip)
	buf = AppendInt32(buf, req.NumberToReturn)
	buf = AppendDocument(buf, req.Query)
	if req.ReturnFieldsSelector != nil {
		buf = AppendDocument(buf, req.ReturnFieldsSelector)
	}
	return buf
}

// ReplyResponse is the decoded/encoded body of an OP_REPLY message.
type ReplyResponse struct {
	ResponseFlags  int32
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []bson.Raw
}

// DecodeReply decodes an OP_REPLY body (used by tests exercising the
// round-trip property; the server itself never receives OP_REPLY).
func DecodeReply(f Frame) (ReplyResponse, error) {
	b := f.Raw
	off := HeaderSize
	var resp ReplyResponse
	var err error

	resp.ResponseFlags, off, err = ReadInt32(b, off)
	if err != nil {
		return resp, err
	}
	resp.CursorID, off, err = ReadInt64(b, off)
	if err != nil {
		return resp, err
	}
	resp.StartingFrom, off, err = ReadInt32(b, off)
	if err != nil {
		return resp, err
	}
	resp.NumberReturned, off, err = ReadInt32(b, off)
	if err != nil {
		return resp, err
	}
	for i := int32(0); i < resp.NumberReturned; i++ {
		var doc bson.Raw
		doc, off, err = ReadDocument(b, off)
		if err != nil {
			return resp, err
		}
		resp.Documents = append(resp.Documents, doc)
	}
	if off != len(b) {
		return resp, ErrTrailingGarbage
	}
	return resp, nil
}

// EncodeReply produces an OP_REPLY body from resp, deriving NumberReturned
// from len(resp.Documents).
func EncodeReply(resp ReplyResponse) []byte {
	resp.NumberReturned = int32(len(resp.Documents))
	buf := make([]byte, 0, 20)
	buf = AppendInt32(buf, resp.ResponseFlags)
	buf = AppendInt64(buf, resp.CursorID)
	buf = AppendInt32(buf, resp.StartingFrom)
	buf = AppendInt32(buf, resp.NumberReturned)
	for _, doc := range resp.Documents {
		buf = AppendDocument(buf, doc)
	}
	return buf
}
