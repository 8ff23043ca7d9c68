package wire

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func decodeFrame(t *testing.T, raw []byte) Frame {
	t.Helper()
	return Frame{Header: DecodeHeader(raw), Raw: raw}
}

func TestMsgBodySectionRoundTrip(t *testing.T) {
	body := mustDoc(t, bson.D{{Key: "ping", Value: int32(1)}, {Key: "$db", Value: "admin"}})
	frame := BuildFrame(OpMsg, 1, 0, append(AppendUint32(nil, 0), append([]byte{SectionKindBody}, body...)...))

	req, err := DecodeMsg(decodeFrame(t, frame))
	require.NoError(t, err)
	require.Len(t, req.Sections, 1)
	assert.Equal(t, SectionKindBody, req.Sections[0].Kind)
	assert.Equal(t, []byte(body), []byte(req.Sections[0].Body))
}

func TestMsgDocSequenceSection(t *testing.T) {
	doc1 := mustDoc(t, bson.D{{Key: "name", Value: "a"}})
	doc2 := mustDoc(t, bson.D{{Key: "name", Value: "b"}})

	seqBody := AppendCString(nil, "documents")
	seqBody = append(seqBody, doc1...)
	seqBody = append(seqBody, doc2...)
	sizeField := AppendInt32(nil, int32(4+len(seqBody)))

	body := AppendUint32(nil, 0)
	body = append(body, SectionKindDocSequence)
	body = append(body, sizeField...)
	body = append(body, seqBody...)

	frame := BuildFrame(OpMsg, 1, 0, body)
	req, err := DecodeMsg(decodeFrame(t, frame))
	require.NoError(t, err)
	require.Len(t, req.Sections, 1)
	assert.Equal(t, "documents", req.Sections[0].Identifier)
	require.Len(t, req.Sections[0].Documents, 2)
}

func TestMsgChecksumRoundTrip(t *testing.T) {
	resp := MsgResponse{
		Sections:        []Section{{Kind: SectionKindBody, Body: mustDoc(t, bson.D{{Key: "ok", Value: float64(1)}})}},
		ChecksumPresent: true,
	}
	frame := BuildMsgFrame(1, 42, resp)

	h := DecodeHeader(frame)
	assert.Equal(t, int32(len(frame)), h.MessageLength)

	flagBits, _, err := ReadUint32(frame, HeaderSize)
	require.NoError(t, err)
	assert.NotZero(t, flagBits&MsgFlagChecksumPresent)

	gotCRC, _, err := ReadUint32(frame, len(frame)-4)
	require.NoError(t, err)
	wantCRC := crc32.Checksum(frame[:len(frame)-4], castagnoliTable)
	assert.Equal(t, wantCRC, gotCRC)

	req, err := DecodeMsg(decodeFrame(t, frame))
	require.NoError(t, err)
	assert.False(t, req.ChecksumMismatch)
	require.Len(t, req.Sections, 1)
}

func TestMsgChecksumMismatchDropsSilently(t *testing.T) {
	resp := MsgResponse{
		Sections:        []Section{{Kind: SectionKindBody, Body: mustDoc(t, bson.D{{Key: "ok", Value: float64(1)}})}},
		ChecksumPresent: true,
	}
	frame := BuildMsgFrame(1, 42, resp)
	frame[len(frame)-1] ^= 0xFF // corrupt the trailer

	req, err := DecodeMsg(decodeFrame(t, frame))
	require.NoError(t, err)
	assert.True(t, req.ChecksumMismatch)
	assert.Empty(t, req.Sections)
}

func TestMsgUnknownSectionKindIsError(t *testing.T) {
	body := AppendUint32(nil, 0)
	body = append(body, 0x7F) // not 0, 1, or 2
	frame := BuildFrame(OpMsg, 1, 0, body)

	_, err := DecodeMsg(decodeFrame(t, frame))
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestMsgMoreToComeFlagPreserved(t *testing.T) {
	body := AppendUint32(nil, MsgFlagMoreToCome)
	frame := BuildFrame(OpMsg, 1, 0, body)
	req, err := DecodeMsg(decodeFrame(t, frame))
	require.NoError(t, err)
	assert.NotZero(t, req.FlagBits&MsgFlagMoreToCome)
	assert.Empty(t, req.Sections)
}
