package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func mustDoc(t *testing.T, d bson.D) bson.Raw {
	t.Helper()
	raw, err := MarshalDocument(d)
	require.NoError(t, err)
	return raw
}

func TestQueryRoundTrip(t *testing.T) {
	req := QueryRequest{
		Flags:              0,
		FullCollectionName: "admin.$cmd",
		NumberToSkip:       0,
		NumberToReturn:     -1,
		Query:              mustDoc(t, bson.D{{Key: "ismaster", Value: int32(1)}}),
	}
	body := EncodeQuery(req)
	frame := Frame{Header: Header{MessageLength: int32(HeaderSize + len(body)), OpCode: int32(OpQuery)}, Raw: append(make([]byte, HeaderSize), body...)}

	got, err := DecodeQuery(frame)
	require.NoError(t, err)
	assert.Equal(t, req.FullCollectionName, got.FullCollectionName)
	assert.Equal(t, req.NumberToReturn, got.NumberToReturn)
	assert.Equal(t, []byte(req.Query), []byte(got.Query))
	assert.Nil(t, got.ReturnFieldsSelector)
}

func TestQueryRoundTripWithReturnFields(t *testing.T) {
	req := QueryRequest{
		FullCollectionName:   "test.users",
		NumberToReturn:       10,
		Query:                mustDoc(t, bson.D{}),
		ReturnFieldsSelector: mustDoc(t, bson.D{{Key: "name", Value: int32(1)}}),
	}
	body := EncodeQuery(req)
	frame := Frame{Raw: append(make([]byte, HeaderSize), body...)}

	got, err := DecodeQuery(frame)
	require.NoError(t, err)
	require.NotNil(t, got.ReturnFieldsSelector)
	assert.Equal(t, []byte(req.ReturnFieldsSelector), []byte(got.ReturnFieldsSelector))
}

func TestQueryTrailingGarbage(t *testing.T) {
	req := QueryRequest{FullCollectionName: "test.users", Query: mustDoc(t, bson.D{})}
	body := EncodeQuery(req)
	body = append(body, 0xAB) // extra byte after the documented layout
	frame := Frame{Raw: append(make([]byte, HeaderSize), body...)}

	_, err := DecodeQuery(frame)
	assert.ErrorIs(t, err, ErrTrailingGarbage)
}

func TestReplyRoundTrip(t *testing.T) {
	resp := ReplyResponse{
		ResponseFlags: 0,
		CursorID:      0,
		StartingFrom:  0,
		Documents: []bson.Raw{
			mustDoc(t, bson.D{{Key: "name", Value: "a"}}),
			mustDoc(t, bson.D{{Key: "name", Value: "b"}}),
		},
	}
	body := EncodeReply(resp)
	frame := Frame{Raw: append(make([]byte, HeaderSize), body...)}

	got, err := DecodeReply(frame)
	require.NoError(t, err)
	assert.Equal(t, int32(2), got.NumberReturned)
	assert.Len(t, got.Documents, 2)
}

func TestFrameLengthInvariant(t *testing.T) {
	body := EncodeReply(ReplyResponse{Documents: []bson.Raw{mustDoc(t, bson.D{{Key: "ok", Value: float64(1)}})}})
	frame := BuildFrame(OpReply, 1, 7, body)
	h := DecodeHeader(frame)
	assert.Equal(t, int32(HeaderSize+len(body)), h.MessageLength)
	assert.Equal(t, int32(7), h.ResponseTo)
}
