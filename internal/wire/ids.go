package wire

import "sync/atomic"

// requestIDCounter is shared process-wide. Only monotonic increase per
// connection is required; a shared monotonic counter satisfies that (and
// every connection's ids besides).
var requestIDCounter atomic.Int32

// NextRequestID allocates the request_id for the next frame this process
// writes to any connection.
func NextRequestID() int32 {
	return requestIDCounter.Add(1)
}

// BuildFrame assembles a complete frame: a 16-byte header followed by body,
// with message_length set to HeaderSize+len(body).
func BuildFrame(op Opcode, requestID, responseTo int32, body []byte) []byte {
	h := Header{
		MessageLength: int32(HeaderSize + len(body)),
		RequestID:     requestID,
		ResponseTo:    responseTo,
		OpCode:        int32(op),
	}
	buf := make([]byte, 0, h.MessageLength)
	buf = EncodeHeader(buf, h)
	buf = append(buf, body...)
	return buf
}
