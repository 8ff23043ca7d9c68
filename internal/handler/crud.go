package handler

import (
	"errors"
	"fmt"

	"github.com/mongowire/mongowired/internal/store"
	"github.com/mongowire/mongowired/internal/wire"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func init() {
	Register("insert", cmdInsert)
	Register("find", cmdFind)
	Register("update", cmdUpdate)
	Register("delete", cmdDelete)
	Register("findAndModify", cmdFindAndModify)
	Register("findandmodify", cmdFindAndModify)
	Register("count", cmdCount)
	Register("getMore", cmdGetMore)
	Register("getmore", cmdGetMore)
}

func cmdInsert(h *Handler, db string, cmd bson.D, sections []wire.Section, _ int64) (bson.D, error) {
	collName, _ := cmd[0].Value.(string)
	if collName == "" {
		return errorResp(2, "BadValue", "insert requires a collection name"), nil
	}

	var docs []bson.D

	if arr := getArrayField(cmd, "documents"); arr != nil {
		for _, item := range arr {
			if d, ok := item.(bson.D); ok {
				docs = append(docs, d)
			}
		}
	}

	for _, sec := range sections {
		if sec.Kind == wire.SectionKindDocSequence && sec.Identifier == "documents" {
			for _, raw := range sec.Documents {
				var d bson.D
				if err := bson.Unmarshal(raw, &d); err != nil {
					return nil, fmt.Errorf("unmarshal insert doc: %w", err)
				}
				docs = append(docs, d)
			}
		}
	}

	if len(docs) == 0 {
		return errorResp(2, "BadValue", "no documents to insert"), nil
	}

	ids, err := h.Store.InsertMany(db, collName, docs)
	if err != nil {
		return nil, err
	}

	return bson.D{
		{Key: "n", Value: int32(len(ids))},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdFind(h *Handler, db string, cmd bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	collName, _ := cmd[0].Value.(string)
	if collName == "" {
		return errorResp(2, "BadValue", "find requires a collection name"), nil
	}

	filter := getDocField(cmd, "filter")
	sort := getDocField(cmd, "sort")
	skip := getInt64Field(cmd, "skip")
	limit := getInt64Field(cmd, "limit")

	if limit == 0 {
		if bs := getInt64Field(cmd, "batchSize"); bs > 0 {
			limit = bs
		}
	}

	if getBoolField(cmd, "singleBatch", false) && limit == 0 {
		limit = 1
	}

	results, err := h.Store.Find(db, collName, filter, sort, skip, limit)
	if err != nil {
		return nil, err
	}

	batch := bson.A{}
	for _, doc := range results {
		batch = append(batch, doc)
	}

	ns := db + "." + collName
	return bson.D{
		{Key: "cursor", Value: bson.D{
			{Key: "firstBatch", Value: batch},
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: ns},
		}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdUpdate(h *Handler, db string, cmd bson.D, sections []wire.Section, _ int64) (bson.D, error) {
	collName, _ := cmd[0].Value.(string)
	if collName == "" {
		return errorResp(2, "BadValue", "update requires a collection name"), nil
	}

	var updates bson.A
	if arr := getArrayField(cmd, "updates"); arr != nil {
		updates = arr
	}

	for _, sec := range sections {
		if sec.Kind == wire.SectionKindDocSequence && sec.Identifier == "updates" {
			for _, raw := range sec.Documents {
				var d bson.D
				if err := bson.Unmarshal(raw, &d); err != nil {
					return nil, fmt.Errorf("unmarshal update spec: %w", err)
				}
				updates = append(updates, d)
			}
		}
	}

	var totalMatched, totalModified int64
	var upsertedDocs bson.A

	for _, u := range updates {
		spec, ok := u.(bson.D)
		if !ok {
			continue
		}
		q := getDocField(spec, "q")
		upd := getDocField(spec, "u")
		multi := getBoolField(spec, "multi", false)
		upsert := getBoolField(spec, "upsert", false)

		var matched, modified int64
		var upsertedID any
		var err error
		if multi {
			matched, modified, upsertedID, err = h.Store.UpdateMany(db, collName, q, upd, upsert)
		} else {
			matched, modified, upsertedID, err = h.Store.UpdateOne(db, collName, q, upd, upsert)
		}
		if err != nil {
			var dke *store.DuplicateKeyError
			if errors.As(err, &dke) {
				return errorResp(11000, "DuplicateKey", dke.Error()), nil
			}
			return nil, err
		}
		totalMatched += matched
		totalModified += modified
		if upsertedID != nil {
			upsertedDocs = append(upsertedDocs, bson.D{
				{Key: "index", Value: int32(0)},
				{Key: "_id", Value: upsertedID},
			})
		}
	}

	resp := bson.D{
		{Key: "n", Value: int32(totalMatched)},
		{Key: "nModified", Value: int32(totalModified)},
	}
	if len(upsertedDocs) > 0 {
		resp = append(resp, bson.E{Key: "upserted", Value: upsertedDocs})
	}
	resp = append(resp, bson.E{Key: "ok", Value: float64(1)})
	return resp, nil
}

func cmdDelete(h *Handler, db string, cmd bson.D, sections []wire.Section, _ int64) (bson.D, error) {
	collName, _ := cmd[0].Value.(string)
	if collName == "" {
		return errorResp(2, "BadValue", "delete requires a collection name"), nil
	}

	var deletes bson.A
	if arr := getArrayField(cmd, "deletes"); arr != nil {
		deletes = arr
	}

	for _, sec := range sections {
		if sec.Kind == wire.SectionKindDocSequence && sec.Identifier == "deletes" {
			for _, raw := range sec.Documents {
				var d bson.D
				if err := bson.Unmarshal(raw, &d); err != nil {
					return nil, fmt.Errorf("unmarshal delete spec: %w", err)
				}
				deletes = append(deletes, d)
			}
		}
	}

	var totalDeleted int64
	for _, d := range deletes {
		spec, ok := d.(bson.D)
		if !ok {
			continue
		}
		q := getDocField(spec, "q")
		limitVal := getInt64Field(spec, "limit")
		multi := limitVal == 0

		n, err := h.Store.Remove(db, collName, q, multi)
		if err != nil {
			return nil, err
		}
		totalDeleted += n
	}

	return bson.D{
		{Key: "n", Value: int32(totalDeleted)},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdFindAndModify(h *Handler, db string, cmd bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	collName, _ := cmd[0].Value.(string)
	if collName == "" {
		return errorResp(2, "BadValue", "findAndModify requires a collection name"), nil
	}

	query := getDocField(cmd, "query")
	sort := getDocField(cmd, "sort")
	update := getDocField(cmd, "update")
	remove := getBoolField(cmd, "remove", false)
	returnNew := getBoolField(cmd, "new", false)
	upsert := getBoolField(cmd, "upsert", false)

	result, err := h.Store.FindAndModify(db, collName, query, sort, update, remove, returnNew, upsert)
	if err != nil {
		return nil, err
	}

	resp := bson.D{
		{Key: "ok", Value: float64(1)},
	}
	if result != nil {
		resp = append(resp, bson.E{Key: "value", Value: result})
	} else {
		resp = append(resp, bson.E{Key: "value", Value: nil})
	}
	resp = append(resp, bson.E{Key: "lastErrorObject", Value: bson.D{
		{Key: "n", Value: int32(1)},
		{Key: "updatedExisting", Value: result != nil && !remove},
	}})
	return resp, nil
}

func cmdCount(h *Handler, db string, cmd bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	collName, _ := cmd[0].Value.(string)
	if collName == "" {
		return errorResp(2, "BadValue", "count requires a collection name"), nil
	}

	filter := getDocField(cmd, "query")
	if filter == nil {
		filter = getDocField(cmd, "filter")
	}

	n, err := h.Store.Count(db, collName, filter)
	if err != nil {
		return nil, err
	}

	return bson.D{
		{Key: "n", Value: int32(n)},
		{Key: "ok", Value: float64(1)},
	}, nil
}

func cmdGetMore(_ *Handler, db string, cmd bson.D, _ []wire.Section, _ int64) (bson.D, error) {
	collName := getStringField(cmd, "collection")
	ns := db + "." + collName
	return bson.D{
		{Key: "cursor", Value: bson.D{
			{Key: "nextBatch", Value: bson.A{}},
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: ns},
		}},
		{Key: "ok", Value: float64(1)},
	}, nil
}

