// Package serverinfo gathers the static facts the handshake and
// introspection commands (hello, buildInfo, hostInfo) hand back to clients.
// Everything here is read once at startup and never changes for the life of
// the process.
package serverinfo

import (
	"os"
	"runtime"

	"github.com/mongowire/mongowired/internal/wire"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	serverVersion = "7.0.0"
	gitVersion    = "mongowired"
)

// ServerInfo is the immutable collaborator behind hello/buildInfo/hostInfo.
// It is built once in main and shared read-only across every connection.
type ServerInfo struct {
	base      bson.D
	build     bson.D
	host      bson.D
	processID bson.ObjectID
}

// New gathers Base/Build/Host once. Host facts come from os/runtime, the Go
// equivalent of the psutil/platform calls a CPython server would make.
// processID is generated once per process and reported in hello's
// topologyVersion.
func New() *ServerInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &ServerInfo{
		processID: bson.NewObjectID(),
		base: bson.D{
			{Key: "maxBsonObjectSize", Value: int32(wire.MaxBsonObjectSize)},
			{Key: "maxMessageSizeBytes", Value: int32(wire.MaxMessageSize)},
			{Key: "maxWriteBatchSize", Value: int32(wire.MaxWriteBatchSize)},
			{Key: "logicalSessionTimeoutMinutes", Value: int32(30)},
			{Key: "minWireVersion", Value: int32(wire.MinWireVersion)},
			{Key: "maxWireVersion", Value: int32(wire.MaxWireVersion)},
			{Key: "readOnly", Value: false},
		},
		build: bson.D{
			{Key: "version", Value: serverVersion},
			{Key: "gitVersion", Value: gitVersion},
			{Key: "modules", Value: bson.A{}},
			{Key: "sysInfo", Value: gitVersion},
			{Key: "versionArray", Value: bson.A{int32(7), int32(0), int32(0), int32(0)}},
			{Key: "bits", Value: int32(64)},
			{Key: "maxBsonObjectSize", Value: int32(wire.MaxBsonObjectSize)},
		},
		host: bson.D{
			{Key: "system", Value: bson.D{
				{Key: "hostname", Value: hostname},
				{Key: "cpuArch", Value: runtime.GOARCH},
				{Key: "numCores", Value: int32(runtime.NumCPU())},
				{Key: "numCoresAvailableToProcess", Value: int32(runtime.NumCPU())},
			}},
			{Key: "os", Value: bson.D{
				{Key: "type", Value: runtime.GOOS},
				{Key: "name", Value: runtime.GOOS},
			}},
		},
	}
}

// Base returns the handshake fields shared by hello/ismaster.
func (s *ServerInfo) Base() bson.D { return cloneD(s.base) }

// Build returns the buildInfo document.
func (s *ServerInfo) Build() bson.D { return cloneD(s.build) }

// Host returns the hostInfo document.
func (s *ServerInfo) Host() bson.D { return cloneD(s.host) }

// TopologyVersion returns hello's {processId, counter} pair. counter is
// always 0: this server never changes topology after startup, so there is
// never a reason to advance it.
func (s *ServerInfo) TopologyVersion() bson.D {
	return bson.D{
		{Key: "processId", Value: s.processID},
		{Key: "counter", Value: int64(0)},
	}
}

func cloneD(d bson.D) bson.D {
	out := make(bson.D, len(d))
	copy(out, d)
	return out
}
