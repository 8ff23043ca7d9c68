// Package dispatch selects a body decoder by opcode, routes the decoded
// command to internal/handler, and builds the reply frame (if any). It is
// the only place that knows how the error-disposition table in the
// specification's error-handling section maps onto wire-level behavior:
// fatal close, silent drop, or an error document back to the client.
package dispatch

import (
	"errors"
	"strings"

	"github.com/mongowire/mongowired/internal/handler"
	"github.com/mongowire/mongowired/internal/wire"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Result is what Dispatch produces for one decoded frame.
type Result struct {
	// Response, when non-nil, is a complete outgoing frame ready to write.
	Response []byte
	// Fatal means the connection must be closed after (optionally) writing
	// Response; set for TruncatedFrame/OversizedFrame/TrailingGarbage/
	// InvalidOpcode per the error-disposition table.
	Fatal bool
}

// Dispatcher binds a command Handler to the per-connection decode/encode
// pipeline. It holds no per-connection state; one instance is shared by
// every connection goroutine.
type Dispatcher struct {
	Handler *handler.Handler
}

// New builds a Dispatcher over h.
func New(h *handler.Handler) *Dispatcher {
	return &Dispatcher{Handler: h}
}

// Dispatch decodes f per its header opcode, routes it to the handler
// registry, and returns the frame to write back (if any). connID is the id
// the server assigned the calling connection at accept time.
func (d *Dispatcher) Dispatch(f wire.Frame, log *logrus.Entry, connID int64) Result {
	op := wire.Opcode(f.Header.OpCode)
	if !op.Valid() {
		log.WithField("op_code", f.Header.OpCode).Warn("invalid opcode, closing connection")
		return Result{Fatal: true}
	}

	switch op {
	case wire.OpMsg:
		return d.dispatchMsg(f, log, connID)
	case wire.OpQuery:
		return d.dispatchQuery(f, log, connID)
	case wire.OpInsert:
		d.dispatchLegacyInsert(f, log)
		return Result{}
	case wire.OpUpdate:
		d.dispatchLegacyUpdate(f, log)
		return Result{}
	case wire.OpDelete:
		d.dispatchLegacyDelete(f, log)
		return Result{}
	case wire.OpGetMore, wire.OpKillCursors, wire.OpCompressed:
		log.WithFields(logrus.Fields{"op_code": op.String()}).Warn("unsupported opcode, no reply sent")
		return Result{}
	default:
		log.WithField("op_code", op.String()).Warn("unroutable opcode, closing connection")
		return Result{Fatal: true}
	}
}

// dispatchLegacyInsert, dispatchLegacyUpdate, and dispatchLegacyDelete
// implement the legacy fire-and-forget write opcodes: applied to the store
// if well-formed, never acknowledged either way.
func (d *Dispatcher) dispatchLegacyInsert(f wire.Frame, log *logrus.Entry) {
	req, err := wire.DecodeInsert(f)
	if err != nil {
		log.WithError(err).Warn("malformed OP_INSERT body, dropping")
		return
	}
	db, coll := splitNamespace(req.FullCollectionName)
	docs := make([]bson.D, len(req.Documents))
	for i, raw := range req.Documents {
		if err := bson.Unmarshal(raw, &docs[i]); err != nil {
			log.WithError(err).Warn("malformed OP_INSERT document, dropping")
			return
		}
	}
	if _, err := d.Handler.Store.InsertMany(db, coll, docs); err != nil {
		log.WithError(err).Warn("OP_INSERT failed, no reply possible")
	}
}

func (d *Dispatcher) dispatchLegacyUpdate(f wire.Frame, log *logrus.Entry) {
	req, err := wire.DecodeUpdate(f)
	if err != nil {
		log.WithError(err).Warn("malformed OP_UPDATE body, dropping")
		return
	}
	db, coll := splitNamespace(req.FullCollectionName)
	var selector, update bson.D
	if err := bson.Unmarshal(req.Selector, &selector); err != nil {
		log.WithError(err).Warn("malformed OP_UPDATE selector, dropping")
		return
	}
	if err := bson.Unmarshal(req.Update, &update); err != nil {
		log.WithError(err).Warn("malformed OP_UPDATE document, dropping")
		return
	}
	upsert := req.Flags&wire.UpdateFlagUpsert != 0
	var updateErr error
	if req.Flags&wire.UpdateFlagMulti != 0 {
		_, _, _, updateErr = d.Handler.Store.UpdateMany(db, coll, selector, update, upsert)
	} else {
		_, _, _, updateErr = d.Handler.Store.UpdateOne(db, coll, selector, update, upsert)
	}
	if updateErr != nil {
		log.WithError(updateErr).Warn("OP_UPDATE failed, no reply possible")
	}
}

func (d *Dispatcher) dispatchLegacyDelete(f wire.Frame, log *logrus.Entry) {
	req, err := wire.DecodeDelete(f)
	if err != nil {
		log.WithError(err).Warn("malformed OP_DELETE body, dropping")
		return
	}
	db, coll := splitNamespace(req.FullCollectionName)
	multi := req.Flags&wire.DeleteFlagSingleRemove == 0
	for _, raw := range req.Documents {
		var selector bson.D
		if err := bson.Unmarshal(raw, &selector); err != nil {
			log.WithError(err).Warn("malformed OP_DELETE selector, dropping")
			return
		}
		if _, err := d.Handler.Store.Remove(db, coll, selector, multi); err != nil {
			log.WithError(err).Warn("OP_DELETE failed, no reply possible")
		}
	}
}

func splitNamespace(fullName string) (db, coll string) {
	if idx := strings.Index(fullName, "."); idx > 0 {
		return fullName[:idx], fullName[idx+1:]
	}
	return "admin", ""
}

func (d *Dispatcher) dispatchMsg(f wire.Frame, log *logrus.Entry, connID int64) Result {
	req, err := wire.DecodeMsg(f)
	if err != nil {
		if isFatalDecodeErr(err) {
			log.WithError(err).Warn("malformed OP_MSG frame, closing connection")
			return Result{Fatal: true}
		}
		log.WithError(err).Warn("malformed OP_MSG body, replying with an error document")
		resp := errDoc(0, "UnknownError", "malformed request: "+err.Error())
		return Result{Response: wire.BuildMsgFrame(wire.NextRequestID(), f.Header.RequestID, wire.MsgResponse{
			Sections: []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshal(resp)}},
		})}
	}
	if req.ChecksumMismatch {
		log.Warn("OP_MSG checksum mismatch, dropping silently")
		return Result{}
	}

	var body bson.Raw
	var extraSections []wire.Section
	for _, sec := range req.Sections {
		if sec.Kind == wire.SectionKindBody {
			body = sec.Body
		} else {
			extraSections = append(extraSections, sec)
		}
	}

	if body == nil {
		resp := errDoc(0, "UnknownError", "missing body section")
		return Result{Response: wire.BuildMsgFrame(wire.NextRequestID(), f.Header.RequestID, wire.MsgResponse{
			Sections: []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshal(resp)}},
		})}
	}

	resp := d.Handler.Handle(body, extraSections, connID)

	if req.FlagBits&wire.MsgFlagMoreToCome != 0 {
		return Result{}
	}

	checksumPresent := req.FlagBits&wire.MsgFlagChecksumPresent != 0
	frame := wire.BuildMsgFrame(wire.NextRequestID(), f.Header.RequestID, wire.MsgResponse{
		Sections:        []wire.Section{{Kind: wire.SectionKindBody, Body: mustMarshal(resp)}},
		ChecksumPresent: checksumPresent,
	})
	return Result{Response: frame}
}

// dispatchQuery handles OP_QUERY: a query document carrying ismaster:1 goes
// through the hello/OP_REPLY path; every other OP_QUERY is a plain
// collection find, handled directly against the store rather than the
// OP_MSG command table (a legacy find is not a command document — its
// first and only key may well be a filter field, not a command name).
func (d *Dispatcher) dispatchQuery(f wire.Frame, log *logrus.Entry, connID int64) Result {
	qry, err := wire.DecodeQuery(f)
	if err != nil {
		if isFatalDecodeErr(err) {
			log.WithError(err).Warn("malformed OP_QUERY frame, closing connection")
			return Result{Fatal: true}
		}
		log.WithError(err).Warn("malformed OP_QUERY body, replying with an error document")
		resp := errDoc(2, "BadValue", "malformed request: "+err.Error())
		return Result{Response: wire.BuildFrame(wire.OpReply, wire.NextRequestID(), f.Header.RequestID, wire.EncodeReply(wire.ReplyResponse{Documents: []bson.Raw{mustMarshal(resp)}}))}
	}

	db, coll := splitNamespace(qry.FullCollectionName)

	var query bson.D
	if err := bson.Unmarshal(qry.Query, &query); err != nil {
		resp := errDoc(2, "BadValue", "failed to parse query: "+err.Error())
		return Result{Response: wire.BuildFrame(wire.OpReply, wire.NextRequestID(), f.Header.RequestID, wire.EncodeReply(wire.ReplyResponse{Documents: []bson.Raw{mustMarshal(resp)}}))}
	}

	if isMasterField(query) {
		return d.dispatchLegacyHello(f, db, connID)
	}
	return d.dispatchLegacyFind(f, db, coll, query, qry, log)
}

// isMasterField reports whether query's "ismaster" (or "isMaster") key is
// truthy, matching both legacy shells and modern drivers' spelling.
func isMasterField(query bson.D) bool {
	for _, e := range query {
		if e.Key != "ismaster" && e.Key != "isMaster" {
			continue
		}
		switch v := e.Value.(type) {
		case int32:
			return v == 1
		case int64:
			return v == 1
		case float64:
			return v == 1
		case bool:
			return v
		}
	}
	return false
}

func (d *Dispatcher) dispatchLegacyHello(f wire.Frame, db string, connID int64) Result {
	cmd := bson.D{{Key: "ismaster", Value: int32(1)}, {Key: "$db", Value: db}}
	body, err := bson.Marshal(cmd)
	if err != nil {
		panic(err)
	}
	resp := d.Handler.Handle(bson.Raw(body), nil, connID)
	replyBody := wire.EncodeReply(wire.ReplyResponse{
		ResponseFlags: int32(wire.ReplyFlagAwaitCapable),
		Documents:     []bson.Raw{mustMarshal(resp)},
	})
	return Result{Response: wire.BuildFrame(wire.OpReply, wire.NextRequestID(), f.Header.RequestID, replyBody)}
}

// dispatchLegacyFind is the generic query handler: unwrap $query/$orderby
// (only OP_QUERY does this), call store.Find, and report a store error via
// the QueryFailure response flag rather than an error document (OP_REPLY
// has no ok/errmsg convention).
func (d *Dispatcher) dispatchLegacyFind(f wire.Frame, db, coll string, query bson.D, qry wire.QueryRequest, log *logrus.Entry) Result {
	actualQuery := query
	var orderBy bson.D
	if inner := docField(query, "$query"); inner != nil {
		actualQuery = inner
	}
	if ob := docField(query, "$orderby"); ob != nil {
		orderBy = ob
	}

	results, err := d.Handler.Store.Find(db, coll, actualQuery, orderBy, int64(qry.NumberToSkip), int64(qry.NumberToReturn))
	if err != nil {
		log.WithError(err).Warn("store.Find failed, setting QueryFailure response flag")
		replyBody := wire.EncodeReply(wire.ReplyResponse{ResponseFlags: int32(wire.ReplyFlagQueryFailure)})
		return Result{Response: wire.BuildFrame(wire.OpReply, wire.NextRequestID(), f.Header.RequestID, replyBody)}
	}

	docs := make([]bson.Raw, len(results))
	for i, doc := range results {
		docs[i] = mustMarshal(doc)
	}
	replyBody := wire.EncodeReply(wire.ReplyResponse{Documents: docs})
	return Result{Response: wire.BuildFrame(wire.OpReply, wire.NextRequestID(), f.Header.RequestID, replyBody)}
}

func docField(d bson.D, key string) bson.D {
	for _, e := range d {
		if e.Key == key {
			if v, ok := e.Value.(bson.D); ok {
				return v
			}
		}
	}
	return nil
}

// isFatalDecodeErr reports whether a decode error closes the connection
// (TruncatedFrame/TrailingGarbage/InvalidOpcode). Callers reply with an
// error document for every other decode error (MalformedDocument/
// InvalidUtf8).
func isFatalDecodeErr(err error) bool {
	return errors.Is(err, wire.ErrTruncatedFrame) ||
		errors.Is(err, wire.ErrTrailingGarbage) ||
		errors.Is(err, wire.ErrInvalidOpcode)
}

func errDoc(code int32, codeName, msg string) bson.D {
	return bson.D{
		{Key: "ok", Value: float64(0)},
		{Key: "errmsg", Value: msg},
		{Key: "code", Value: code},
		{Key: "codeName", Value: codeName},
	}
}

func mustMarshal(d bson.D) bson.Raw {
	raw, err := bson.Marshal(d)
	if err != nil {
		// Every document dispatch builds is a simple bson.D with driver
		// types; a marshal failure here means a handler returned something
		// pathological, which is a programming error, not a protocol one.
		panic(err)
	}
	return raw
}
