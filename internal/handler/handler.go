// Package handler implements the OP_MSG/OP_QUERY command surface: one
// registered function per command name, dispatched by the first key of the
// incoming command document.
package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mongowire/mongowired/internal/metrics"
	"github.com/mongowire/mongowired/internal/serverinfo"
	"github.com/mongowire/mongowired/internal/store"
	"github.com/mongowire/mongowired/internal/wire"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Handler holds the collaborators every registered command may need. It
// depends on the store.Store interface, never a concrete engine, so the
// wire layer never assumes a particular storage backend.
type Handler struct {
	Store   store.Store
	Info    *serverinfo.ServerInfo
	Metrics metrics.MetricsSource
}

// CommandFunc implements one registered command. connID is the id the
// server assigned the calling connection at accept time, needed by hello
// to report connectionId; most commands ignore it.
type CommandFunc func(h *Handler, db string, cmd bson.D, sections []wire.Section, connID int64) (bson.D, error)

var commands = map[string]CommandFunc{}

// Register adds a command under name, matched case-insensitively.
func Register(name string, fn CommandFunc) {
	commands[strings.ToLower(name)] = fn
}

// New builds a Handler over the given collaborators.
func New(s store.Store, info *serverinfo.ServerInfo, m metrics.MetricsSource) *Handler {
	return &Handler{Store: s, Info: info, Metrics: m}
}

// Handle dispatches a command from an OP_MSG/OP_QUERY body. It never
// returns an error itself — malformed or unknown commands come back as a
// normal MongoDB error document.
func (h *Handler) Handle(body bson.Raw, extraSections []wire.Section, connID int64) bson.D {
	var cmd bson.D
	if err := bson.Unmarshal(body, &cmd); err != nil {
		return errorResp(2, "BadValue", "failed to parse command: "+err.Error())
	}

	if len(cmd) == 0 {
		return errorResp(2, "BadValue", "empty command")
	}

	cmdName := cmd[0].Key

	db := "test"
	for _, e := range cmd {
		if e.Key == "$db" {
			if s, ok := e.Value.(string); ok {
				db = s
			}
		}
	}

	fn, ok := commands[strings.ToLower(cmdName)]
	if !ok {
		return errorResp(59, "CommandNotFound", fmt.Sprintf("no such command: '%s'", cmdName))
	}

	resp, err := fn(h, db, cmd, extraSections, connID)
	if err != nil {
		var dke *store.DuplicateKeyError
		if errors.As(err, &dke) {
			return errorResp(11000, "DuplicateKey", dke.Error())
		}
		return errorResp(0, "UnknownError", err.Error())
	}
	return resp
}

func errorResp(code int32, codeName, msg string) bson.D {
	return bson.D{
		{Key: "ok", Value: float64(0)},
		{Key: "errmsg", Value: msg},
		{Key: "code", Value: code},
		{Key: "codeName", Value: codeName},
	}
}

func okResp() bson.D {
	return bson.D{{Key: "ok", Value: float64(1)}}
}

func getStringField(cmd bson.D, key string) string {
	for _, e := range cmd {
		if e.Key == key {
			if s, ok := e.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func getDocField(cmd bson.D, key string) bson.D {
	for _, e := range cmd {
		if e.Key == key {
			if d, ok := e.Value.(bson.D); ok {
				return d
			}
		}
	}
	return nil
}

func getArrayField(cmd bson.D, key string) bson.A {
	for _, e := range cmd {
		if e.Key == key {
			if a, ok := e.Value.(bson.A); ok {
				return a
			}
		}
	}
	return nil
}

func getInt64Field(cmd bson.D, key string) int64 {
	for _, e := range cmd {
		if e.Key == key {
			switch v := e.Value.(type) {
			case int32:
				return int64(v)
			case int64:
				return v
			case float64:
				return int64(v)
			case int:
				return int64(v)
			}
		}
	}
	return 0
}

func getBoolField(cmd bson.D, key string, def bool) bool {
	for _, e := range cmd {
		if e.Key == key {
			if b, ok := e.Value.(bool); ok {
				return b
			}
		}
	}
	return def
}
