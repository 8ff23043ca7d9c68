package handler

import (
	"time"

	"github.com/mongowire/mongowired/internal/wire"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func init() {
	Register("hello", cmdHello)
	Register("ismaster", cmdHello)
	Register("isMaster", cmdHello)
	Register("buildInfo", cmdBuildInfo)
	Register("buildinfo", cmdBuildInfo)
	Register("ping", cmdPing)
	Register("getParameter", cmdGetParameter)
	Register("getparameter", cmdGetParameter)
	Register("whatsmyuri", cmdWhatsMyURI)
	Register("saslStart", cmdSASLStart)
	Register("saslstart", cmdSASLStart)
	Register("saslContinue", cmdSASLContinue)
	Register("saslcontinue", cmdSASLContinue)
	Register("getLog", cmdGetLog)
	Register("getlog", cmdGetLog)
	Register("getFreeMonitoringStatus", cmdGetFreeMonitoring)
	Register("getfreemonitoringstatus", cmdGetFreeMonitoring)
	Register("endSessions", cmdEndSessions)
	Register("endsessions", cmdEndSessions)
	Register("getCmdLineOpts", cmdGetCmdLineOpts)
	Register("getcmdlineopts", cmdGetCmdLineOpts)
	Register("atlasVersion", cmdAtlasVersion)
	Register("atlasversion", cmdAtlasVersion)
	Register("serverStatus", cmdServerStatus)
	Register("serverstatus", cmdServerStatus)
	Register("connectionStatus", cmdConnectionStatus)
	Register("connectionstatus", cmdConnectionStatus)
	Register("hostInfo", cmdHostInfo)
	Register("hostinfo", cmdHostInfo)
	Register("dbStats", cmdDBStats)
	Register("dbstats", cmdDBStats)
	Register("top", cmdTop)
}

func cmdHello(h *Handler, _ string, _ bson.D, _ []wire.Section, connID int64) (bson.D, error) {
	resp := bson.D{
		{Key: "isWritablePrimary", Value: true},
		{Key: "helloOk", Value: true},
		{Key: "ismaster", Value: true},
	}
	resp = append(resp, h.Info.Base()...)
	resp = append(resp,
		bson.E{Key: "topologyVersion", Value: h.Info.TopologyVersion()},
		bson.E{Key: "localTime", Value: bson.DateTime(time.Now().UnixMilli())},
		bson.E{Key: "connectionId", Value: int32(connID)},
		bson.E{Key: "ok", Value: float64(1)},
	)
	return resp, nil
}

func cmdBuildInfo(h *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	resp := append(bson.D{}, h.Info.Build()...)
	resp = append(resp, bson.E{Key: "ok", Value: float64(1)})
	return resp, nil
}

func cmdPing(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return okResp(), nil
}

func cmdGetParameter(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "featureCompatibilityVersion", Value: bson.D{{Key: "version", Value: "8.0"}}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdWhatsMyURI(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "you", Value: "127.0.0.1:0"},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdSASLStart(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "conversationId", Value: int32(1)},
		{Key: "done", Value: true},
		{Key: "payload", Value: bson.Binary{}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdSASLContinue(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "conversationId", Value: int32(1)},
		{Key: "done", Value: true},
		{Key: "payload", Value: bson.Binary{}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdGetLog(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "totalLinesWritten", Value: int32(0)},
		{Key: "log", Value: bson.A{}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdGetFreeMonitoring(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "state", Value: "disabled"},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdEndSessions(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return okResp(), nil
}

func cmdGetCmdLineOpts(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "argv", Value: bson.A{"mongowired"}},
		{Key: "parsed", Value: bson.D{}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdAtlasVersion(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return errorResp(59, "CommandNotFound", "no such command: 'atlasVersion'"), nil
}

func cmdServerStatus(h *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	host := "localhost"
	if sys := getDocField(h.Info.Host(), "system"); sys != nil {
		host = getStringField(sys, "hostname")
	}
	return bson.D{
		{Key: "host", Value: host},
		{Key: "version", Value: serverStatusVersion(h)},
		{Key: "process", Value: "mongowired"},
		{Key: "uptimeMillis", Value: int64(0)},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func serverStatusVersion(h *Handler) string {
	for _, e := range h.Info.Build() {
		if e.Key == "version" {
			if s, ok := e.Value.(string); ok {
				return s
			}
		}
	}
	return "7.0.0"
}

func cmdConnectionStatus(_ *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	return bson.D{
		{Key: "authInfo", Value: bson.D{
			{Key: "authenticatedUsers", Value: bson.A{}},
			{Key: "authenticatedUserRoles", Value: bson.A{}},
			{Key: "authenticatedUserPrivileges", Value: bson.A{}},
		}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdHostInfo(h *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	resp := append(bson.D{}, h.Info.Host()...)
	resp = append(resp, bson.E{Key: "ok", Value: float64(1)})
	return resp, nil
}

func cmdDBStats(h *Handler, db string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	collNames := h.Store.ListCollectionNames(db)
	var objects int64
	for _, coll := range collNames {
		n, err := h.Store.Find(db, coll, nil, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		objects += int64(len(n))
	}
	return bson.D{
		{Key: "db", Value: db},
		{Key: "collections", Value: int32(len(collNames))},
		{Key: "objects", Value: objects},
		{Key: "dataSize", Value: int64(0)},
		{Key: "storageSize", Value: int64(0)},
		{Key: "indexes", Value: int32(0)},
		{Key: "indexSize", Value: int64(0)},
		{Key: "ok", Value: float64(1)},
	}, nil
}

// zeroOp is the {time, count} shape for a tracked op this server never
// actually times (queries/getmore/insert/update/remove/commands); only
// readLock/writeLock get the injected MetricsSource samples.
func zeroOp() bson.D {
	return bson.D{{Key: "time", Value: int64(0)}, {Key: "count", Value: int64(0)}}
}

func cmdTop(h *Handler, _ string, _ bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	readTime, readCount := h.Metrics.ReadLockSample()
	writeTime, writeCount := h.Metrics.WriteLockSample()
	readLock := bson.D{{Key: "time", Value: readTime}, {Key: "count", Value: readCount}}
	writeLock := bson.D{{Key: "time", Value: writeTime}, {Key: "count", Value: writeCount}}

	nsTotals := bson.D{
		{Key: "total", Value: bson.D{{Key: "time", Value: readTime + writeTime}, {Key: "count", Value: readCount + writeCount}}},
		{Key: "readLock", Value: readLock},
		{Key: "writeLock", Value: writeLock},
		{Key: "queries", Value: zeroOp()},
		{Key: "getmore", Value: zeroOp()},
		{Key: "insert", Value: zeroOp()},
		{Key: "update", Value: zeroOp()},
		{Key: "remove", Value: zeroOp()},
		{Key: "commands", Value: zeroOp()},
	}

	totals := bson.D{{Key: "note", Value: "all times in microseconds"}}
	dbNames := h.Store.ListDatabaseNames()
	for _, dbName := range dbNames {
		for _, coll := range h.Store.ListCollectionNames(dbName) {
			totals = append(totals, bson.E{Key: dbName + "." + coll, Value: nsTotals})
		}
	}

	return bson.D{
		{Key: "totals", Value: totals},
		{Key: "ok", Value: float64(1)},
	}, nil
}
