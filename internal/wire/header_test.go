package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{MessageLength: 16, RequestID: 0, ResponseTo: 0, OpCode: int32(OpQuery)},
		{MessageLength: 48000000, RequestID: -1, ResponseTo: 12345, OpCode: int32(OpMsg)},
		{MessageLength: 42, RequestID: 7, ResponseTo: -99, OpCode: int32(OpReply)},
	}
	for _, h := range cases {
		buf := EncodeHeader(nil, h)
		assert.Len(t, buf, HeaderSize)
		got := DecodeHeader(buf)
		assert.Equal(t, h, got)
	}
}
