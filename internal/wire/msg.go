package wire

import (
	"encoding/binary"
	"hash/crc32"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// castagnoliTable is the polynomial MongoDB's wire protocol uses for OP_MSG
// integrity checksums. The standard library's hash/crc32 already implements
// Castagnoli natively (crc32.MakeTable(crc32.Castagnoli)); no third-party
// CRC32C package appears anywhere in the retrieved pack, and stdlib is a
// complete, correct implementation of this exact polynomial, so it is used
// directly rather than pulled in from elsewhere (see DESIGN.md).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Section is one tagged sub-structure of an OP_MSG body.
type Section struct {
	Kind       byte
	Body       bson.Raw   // set when Kind == SectionKindBody
	Identifier string     // set when Kind == SectionKindDocSequence
	Documents  []bson.Raw // set when Kind == SectionKindDocSequence
}

// MsgRequest is the decoded body of an OP_MSG message.
type MsgRequest struct {
	FlagBits uint32
	Sections []Section

	// ChecksumMismatch is true when checksumPresent was set but the trailing
	// CRC-32C didn't verify. This is not fatal: Sections is left empty and
	// the dispatcher drops the frame silently after logging.
	ChecksumMismatch bool
}

// DecodeMsg decodes an OP_MSG body, verifying the checksum first when present.
func DecodeMsg(f Frame) (MsgRequest, error) {
	b := f.Raw
	off := HeaderSize
	var req MsgRequest
	var err error

	req.FlagBits, off, err = ReadUint32(b, off)
	if err != nil {
		return req, err
	}

	checksumPresent := req.FlagBits&MsgFlagChecksumPresent != 0
	end := len(b)
	if checksumPresent {
		if end-4 < off {
			return req, ErrTruncatedFrame
		}
		end -= 4
		wantCRC := crc32.Checksum(b[:end], castagnoliTable)
		gotCRC, _, _ := ReadUint32(b, end)
		if wantCRC != gotCRC {
			req.ChecksumMismatch = true
			return req, nil
		}
	}

	for off < end {
		var kind byte
		kind, b2, err2 := readByte(b, off)
		if err2 != nil {
			return req, err2
		}
		off = b2

		switch kind {
		case SectionKindBody:
			var doc bson.Raw
			doc, off, err = ReadDocument(b[:end], off)
			if err != nil {
				return req, err
			}
			req.Sections = append(req.Sections, Section{Kind: SectionKindBody, Body: doc})

		case SectionKindDocSequence:
			sec, newOff, err2 := decodeDocSequence(b, off, end)
			if err2 != nil {
				return req, err2
			}
			off = newOff
			req.Sections = append(req.Sections, sec)

		case sectionKindInternal:
			size, _, err2 := ReadInt32(b, off)
			if err2 != nil {
				return req, err2
			}
			if size < 4 || off+int(size) > end {
				return req, ErrTruncatedFrame
			}
			off += int(size) // skip; never surfaced to callers

		default:
			return req, ErrMalformedDocument
		}
	}
	if off != end {
		return req, ErrTrailingGarbage
	}
	return req, nil
}

func readByte(b []byte, off int) (byte, int, error) {
	if off >= len(b) {
		return 0, off, ErrTruncatedFrame
	}
	return b[off], off + 1, nil
}

// decodeDocSequence reads a kind=1 section: section_size:int32 (inclusive of
// itself), identifier:cstring, then documents filling the remainder.
func decodeDocSequence(b []byte, off, frameEnd int) (Section, int, error) {
	size, bodyStart, err := ReadInt32(b, off)
	if err != nil {
		return Section{}, off, err
	}
	sectionEnd := off + int(size)
	if size < 4 || sectionEnd > frameEnd {
		return Section{}, off, ErrTruncatedFrame
	}

	identifier, pos, err := ReadCString(b, bodyStart)
	if err != nil {
		return Section{}, off, err
	}

	sec := Section{Kind: SectionKindDocSequence, Identifier: identifier}
	for pos < sectionEnd {
		var doc bson.Raw
		doc, pos, err = ReadDocument(b, pos)
		if err != nil {
			return Section{}, off, err
		}
		sec.Documents = append(sec.Documents, doc)
	}
	if pos != sectionEnd {
		return Section{}, off, ErrTrailingGarbage
	}
	return sec, sectionEnd, nil
}

// MsgResponse is an outgoing OP_MSG body plus whether to append a checksum.
type MsgResponse struct {
	FlagBits        uint32
	Sections        []Section
	ChecksumPresent bool
}

// encodeMsgBody writes flag_bits followed by each section; only kind=0
// (body) sections are ever emitted by this server.
func encodeMsgBody(resp MsgResponse) []byte {
	buf := make([]byte, 0, 64)
	buf = AppendUint32(buf, resp.FlagBits)
	for _, sec := range resp.Sections {
		buf = append(buf, sec.Kind)
		switch sec.Kind {
		case SectionKindBody:
			buf = AppendDocument(buf, sec.Body)
		case SectionKindDocSequence:
			secBuf := make([]byte, 0, 32)
			secBuf = AppendCString(secBuf, sec.Identifier)
			for _, doc := range sec.Documents {
				secBuf = AppendDocument(secBuf, doc)
			}
			sizeField := make([]byte, 0, 4)
			sizeField = AppendInt32(sizeField, int32(4+len(secBuf)))
			buf = append(buf, sizeField...)
			buf = append(buf, secBuf...)
		}
	}
	return buf
}

// BuildMsgFrame assembles a complete OP_MSG frame, appending a CRC-32C
// trailer over the full frame-minus-trailer when resp.ChecksumPresent is
// set, and reflecting that bit into the outgoing flag_bits (Testable
// Property 6).
func BuildMsgFrame(requestID, responseTo int32, resp MsgResponse) []byte {
	if resp.ChecksumPresent {
		resp.FlagBits |= MsgFlagChecksumPresent
	} else {
		resp.FlagBits &^= MsgFlagChecksumPresent
	}

	body := encodeMsgBody(resp)
	frame := BuildFrame(OpMsg, requestID, responseTo, body)
	if !resp.ChecksumPresent {
		return frame
	}

	// message_length must include the trailer before the CRC is taken, since
	// verifiers (including our own DecodeMsg) compute over the frame as it
	// will actually appear on the wire, trailer-length included.
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(frame)+4))
	crc := crc32.Checksum(frame, castagnoliTable)
	frame = AppendUint32(frame, crc)
	return frame
}
