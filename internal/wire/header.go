package wire

import "encoding/binary"

// HeaderSize is the fixed byte length of every message header.
const HeaderSize = 16

// Header is the 16-byte fixed preamble of every wire message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        int32
}

// DecodeHeader reads a Header from exactly the first HeaderSize bytes of b.
func DecodeHeader(b []byte) Header {
	return Header{
		MessageLength: int32(binary.LittleEndian.Uint32(b[0:4])),
		RequestID:     int32(binary.LittleEndian.Uint32(b[4:8])),
		ResponseTo:    int32(binary.LittleEndian.Uint32(b[8:12])),
		OpCode:        int32(binary.LittleEndian.Uint32(b[12:16])),
	}
}

// EncodeHeader appends h's wire representation to buf.
func EncodeHeader(buf []byte, h Header) []byte {
	var tmp [HeaderSize]byte
	binary.LittleEndian.PutUint32(tmp[0:4], uint32(h.MessageLength))
	binary.LittleEndian.PutUint32(tmp[4:8], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(tmp[8:12], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(tmp[12:16], uint32(h.OpCode))
	return append(buf, tmp[:]...)
}
