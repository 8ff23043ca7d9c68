package server

import (
	"bytes"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/mongowire/mongowired/internal/dispatch"
	"github.com/mongowire/mongowired/internal/handler"
	"github.com/mongowire/mongowired/internal/metrics"
	"github.com/mongowire/mongowired/internal/serverinfo"
	"github.com/mongowire/mongowired/internal/store"
	"github.com/mongowire/mongowired/internal/wire"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// startTestServer boots a real Server on loopback and returns a dialer; the
// listener and every dialed connection are closed through t.Cleanup. This
// exercises the full accept-loop/conn/dispatch stack end to end rather than
// calling dispatch directly.
func startTestServer(t *testing.T) func() net.Conn {
	t.Helper()
	eng, err := store.New(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)

	h := handler.New(eng, serverinfo.New(), metrics.FixedSource{ReadTime: 900, ReadCount: 20, WriteTime: 950, WriteCount: 5})
	d := dispatch.New(h)

	log := logrus.New()
	log.SetOutput(io.Discard)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &Server{addr: ln.Addr().String(), dispatcher: d, log: log}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			id := srv.nextConnID.Add(1)
			c := &conn{nc: nc, id: id, dispatcher: d, log: log.WithField("conn_id", id)}
			go c.serve()
		}
	}()
	t.Cleanup(func() { ln.Close() })

	return func() net.Conn {
		nc, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { nc.Close() })
		return nc
	}
}

func mustMarshalDoc(t *testing.T, d bson.D) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(d)
	require.NoError(t, err)
	return raw
}

func readReplyFrame(t *testing.T, nc net.Conn) (wire.Header, []byte) {
	t.Helper()
	nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := wire.ReadFrame(nc)
	require.NoError(t, err)
	return f.Header, f.Raw
}

func TestE2ELegacyHelloViaOpQuery(t *testing.T) {
	dial := startTestServer(t)
	nc := dial()

	body := wire.EncodeQuery(wire.QueryRequest{
		FullCollectionName: "admin.$cmd",
		NumberToSkip:       0,
		NumberToReturn:     -1,
		Query:              mustMarshalDoc(t, bson.D{{Key: "ismaster", Value: int32(1)}}),
	})
	frame := wire.BuildFrame(wire.OpQuery, 1, 0, body)
	_, err := nc.Write(frame)
	require.NoError(t, err)

	h, raw := readReplyFrame(t, nc)
	require.Equal(t, int32(1), h.ResponseTo)

	reply, err := wire.DecodeReply(wire.Frame{Header: h, Raw: raw})
	require.NoError(t, err)
	require.Len(t, reply.Documents, 1)

	var doc bson.D
	require.NoError(t, bson.Unmarshal(reply.Documents[0], &doc))
	assertFieldEquals(t, doc, "ismaster", true)
	assertFieldEquals(t, doc, "helloOk", true)
	assertFieldEquals(t, doc, "maxWireVersion", int32(25))
	assertFieldEquals(t, doc, "minWireVersion", int32(0))
	assertFieldEquals(t, doc, "ok", float64(1))
	require.Equal(t, uint32(wire.ReplyFlagAwaitCapable), uint32(reply.ResponseFlags))
}

func TestE2EMsgHello(t *testing.T) {
	dial := startTestServer(t)
	nc := dial()

	topologyVersion := bson.D{{Key: "processId", Value: bson.NewObjectID()}, {Key: "counter", Value: int64(0)}}
	cmd := bson.D{
		{Key: "hello", Value: int32(1)},
		{Key: "maxAwaitTimeMS", Value: int32(10000)},
		{Key: "topologyVersion", Value: topologyVersion},
		{Key: "$db", Value: "admin"},
	}
	frame := wire.BuildMsgFrame(1, 0, wire.MsgResponse{
		FlagBits: wire.MsgFlagExhaustAllowed,
		Sections: []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshalDoc(t, cmd)}},
	})
	_, err := nc.Write(frame)
	require.NoError(t, err)

	_, raw := readReplyFrame(t, nc)
	req, err := wire.DecodeMsg(wire.Frame{Header: wire.DecodeHeader(raw), Raw: raw})
	require.NoError(t, err)
	require.Equal(t, uint32(0), req.FlagBits)
	require.Len(t, req.Sections, 1)

	var doc bson.D
	require.NoError(t, bson.Unmarshal(req.Sections[0].Body, &doc))
	assertFieldEquals(t, doc, "isWritablePrimary", true)
	assertFieldEquals(t, doc, "ok", float64(1))
}

func TestE2EPing(t *testing.T) {
	dial := startTestServer(t)
	nc := dial()

	cmd := bson.D{{Key: "ping", Value: int32(1)}, {Key: "$db", Value: "admin"}}
	frame := wire.BuildMsgFrame(1, 0, wire.MsgResponse{
		Sections: []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshalDoc(t, cmd)}},
	})
	_, err := nc.Write(frame)
	require.NoError(t, err)

	_, raw := readReplyFrame(t, nc)
	req, err := wire.DecodeMsg(wire.Frame{Header: wire.DecodeHeader(raw), Raw: raw})
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(req.Sections[0].Body, &doc))
	require.Equal(t, bson.D{{Key: "ok", Value: float64(1)}}, doc)
}

func TestE2EUnknownCommand(t *testing.T) {
	dial := startTestServer(t)
	nc := dial()

	cmd := bson.D{{Key: "atlasVersion", Value: int32(1)}, {Key: "$db", Value: "admin"}}
	frame := wire.BuildMsgFrame(1, 0, wire.MsgResponse{
		Sections: []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshalDoc(t, cmd)}},
	})
	_, err := nc.Write(frame)
	require.NoError(t, err)

	_, raw := readReplyFrame(t, nc)
	req, err := wire.DecodeMsg(wire.Frame{Header: wire.DecodeHeader(raw), Raw: raw})
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(req.Sections[0].Body, &doc))
	assertFieldEquals(t, doc, "code", int32(59))
	assertFieldEquals(t, doc, "codeName", "CommandNotFound")
}

func TestE2EInsertThenQuery(t *testing.T) {
	dial := startTestServer(t)
	nc := dial()

	insertBody := wire.EncodeInsert(wire.InsertRequest{
		FullCollectionName: "test.users",
		Documents: []bson.Raw{
			mustMarshalDoc(t, bson.D{{Key: "name", Value: "a"}}),
			mustMarshalDoc(t, bson.D{{Key: "name", Value: "b"}}),
		},
	})
	_, err := nc.Write(wire.BuildFrame(wire.OpInsert, 1, 0, insertBody))
	require.NoError(t, err)

	queryBody := wire.EncodeQuery(wire.QueryRequest{
		FullCollectionName: "test.users",
		NumberToReturn:     10,
		Query:              mustMarshalDoc(t, bson.D{}),
	})
	_, err = nc.Write(wire.BuildFrame(wire.OpQuery, 2, 0, queryBody))
	require.NoError(t, err)

	h, raw := readReplyFrame(t, nc)
	require.Equal(t, int32(2), h.ResponseTo)
	reply, err := wire.DecodeReply(wire.Frame{Header: h, Raw: raw})
	require.NoError(t, err)
	require.Equal(t, int32(2), reply.NumberReturned)
	require.Len(t, reply.Documents, 2)
}

func TestE2EMsgChecksum(t *testing.T) {
	dial := startTestServer(t)
	nc := dial()

	cmd := bson.D{{Key: "ping", Value: int32(1)}, {Key: "$db", Value: "admin"}}
	good := wire.BuildMsgFrame(1, 0, wire.MsgResponse{
		Sections:        []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshalDoc(t, cmd)}},
		ChecksumPresent: true,
	})
	_, err := nc.Write(good)
	require.NoError(t, err)

	_, raw := readReplyFrame(t, nc)
	req, err := wire.DecodeMsg(wire.Frame{Header: wire.DecodeHeader(raw), Raw: raw})
	require.NoError(t, err)
	require.False(t, req.ChecksumMismatch)
	require.NotZero(t, req.FlagBits&wire.MsgFlagChecksumPresent)

	dial2 := dial()
	corrupted := bytes.Clone(good)
	corrupted[len(corrupted)-1] ^= 0xFF
	_, err = dial2.Write(corrupted)
	require.NoError(t, err)
	dial2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, err = dial2.Read(make([]byte, 1))
	require.Error(t, err) // no response and connection stays open until read times out
}

func assertFieldEquals(t *testing.T, d bson.D, key string, want any) {
	t.Helper()
	for _, e := range d {
		if e.Key == key {
			require.Equal(t, want, e.Value)
			return
		}
	}
	t.Fatalf("field %q not found in %v", key, d)
}
