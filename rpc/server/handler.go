package server

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/repl"
	"github.com/tkv-io/tKV/lib/storage"
	"github.com/tkv-io/tKV/lib/txn"
	"github.com/tkv-io/tKV/rpc/common"
)

// handle dispatches a single request message to the storage layer and
// builds the response message for it.
func (s *rpcServer) handle(req *common.Message) *common.Message {
	// Check for nil store
	if s.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTApplyOps:
		return s.handleApplyOps(req)
	case common.MsgTDoTxn:
		return s.handleDoTxn(req)
	case common.MsgTInsert:
		return s.handleInsert(req)
	case common.MsgTUpsert:
		return s.handleUpsert(req)
	case common.MsgTDelete:
		return s.handleDelete(req)
	case common.MsgTFind:
		return s.handleFind(req)
	case common.MsgTFindAll:
		return s.handleFindAll(req)
	case common.MsgTCount:
		return s.handleCount(req)
	case common.MsgTCreateCollection:
		return s.handleCreateCollection(req)
	case common.MsgTDropCollection:
		return s.handleDropCollection(req)
	case common.MsgTDropDatabase:
		return s.handleDropDatabase(req)
	case common.MsgTListIdents:
		return s.handleListIdents(req)
	case common.MsgTEngineInfo:
		return s.handleEngineInfo()
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("handler: unsupported message type: %s", req.MsgType),
		)
	}
}

// --------------------------------------------------------------------------
// Replication Operations
// --------------------------------------------------------------------------

func (s *rpcServer) handleApplyOps(req *common.Message) *common.Message {
	entries, err := repl.ParseOplogEntries(req.Ops)
	if err != nil {
		return common.NewApplyOpsResponse(0, nil, err)
	}

	mode := repl.ApplyModeAtomic
	if req.Mode == "nonatomic" {
		mode = repl.ApplyModeNonAtomic
	}

	res, err := s.applier.ApplyOps(s.writeCtx(req.Term), req.DB, entries, mode)
	return common.NewApplyOpsResponse(res.Applied, res.Results, err)
}

func (s *rpcServer) handleDoTxn(req *common.Message) *common.Message {
	entries, err := repl.ParseOplogEntries(req.Ops)
	if err != nil {
		return common.NewDoTxnResponse(0, nil, err)
	}

	_, res, err := s.applier.DoTxn(s.writeCtx(req.Term), req.DB, entries)
	return common.NewDoTxnResponse(res.Applied, res.Results, err)
}

// --------------------------------------------------------------------------
// Document Operations
// --------------------------------------------------------------------------

func (s *rpcServer) handleInsert(req *common.Message) *common.Message {
	doc, err := db.DecodeDocument(req.Doc)
	if err != nil {
		return common.NewWriteResponse(common.MsgTInsert, 0, err)
	}

	ns := catalog.ParseNamespace(req.NS)
	opCtx := s.writeCtx(req.Term)
	if _, err := s.store.EnsureCollection(opCtx, ns); err != nil {
		return common.NewWriteResponse(common.MsgTInsert, 0, err)
	}
	ts, err := s.store.InsertDocument(opCtx, ns, doc)
	return common.NewWriteResponse(common.MsgTInsert, uint64(ts), err)
}

func (s *rpcServer) handleUpsert(req *common.Message) *common.Message {
	doc, err := db.DecodeDocument(req.Doc)
	if err != nil {
		return common.NewWriteResponse(common.MsgTUpsert, 0, err)
	}

	ns := catalog.ParseNamespace(req.NS)
	opCtx := s.writeCtx(req.Term)
	if _, err := s.store.EnsureCollection(opCtx, ns); err != nil {
		return common.NewWriteResponse(common.MsgTUpsert, 0, err)
	}
	ts, err := s.store.UpsertDocument(opCtx, ns, doc)
	return common.NewWriteResponse(common.MsgTUpsert, uint64(ts), err)
}

func (s *rpcServer) handleDelete(req *common.Message) *common.Message {
	id, err := decodeID(req.Key)
	if err != nil {
		return common.NewWriteResponse(common.MsgTDelete, 0, err)
	}

	ns := catalog.ParseNamespace(req.NS)
	ts, err := s.store.DeleteDocument(s.writeCtx(req.Term), ns, id)
	return common.NewWriteResponse(common.MsgTDelete, uint64(ts), err)
}

func (s *rpcServer) handleFind(req *common.Message) *common.Message {
	id, err := decodeID(req.Key)
	if err != nil {
		return common.NewFindResponse(nil, false, err)
	}

	opCtx, err := s.readCtx(req.Ts)
	if err != nil {
		return common.NewFindResponse(nil, false, err)
	}

	ns := catalog.ParseNamespace(req.NS)
	doc, err := s.store.FindOne(opCtx, ns, id)
	if db.IsNotFound(err) {
		return common.NewFindResponse(nil, false, nil)
	} else if err != nil {
		return common.NewFindResponse(nil, false, err)
	}

	val, err := db.EncodeDocument(doc)
	return common.NewFindResponse(val, err == nil, err)
}

func (s *rpcServer) handleFindAll(req *common.Message) *common.Message {
	opCtx, err := s.readCtx(req.Ts)
	if err != nil {
		return common.NewFindAllResponse(nil, err)
	}

	ns := catalog.ParseNamespace(req.NS)
	docs, err := s.store.FindAll(opCtx, ns)
	if err != nil {
		return common.NewFindAllResponse(nil, err)
	}

	values := make([][]byte, len(docs))
	for i, doc := range docs {
		if values[i], err = db.EncodeDocument(doc); err != nil {
			return common.NewFindAllResponse(nil, err)
		}
	}
	return common.NewFindAllResponse(values, nil)
}

func (s *rpcServer) handleCount(req *common.Message) *common.Message {
	opCtx, err := s.readCtx(req.Ts)
	if err != nil {
		return common.NewCountResponse(0, err)
	}

	ns := catalog.ParseNamespace(req.NS)
	count, err := s.store.Count(opCtx, ns)
	return common.NewCountResponse(count, err)
}

// --------------------------------------------------------------------------
// Catalog Operations
// --------------------------------------------------------------------------

func (s *rpcServer) handleCreateCollection(req *common.Message) *common.Message {
	id := uuid.Nil
	if req.UUID != "" {
		var err error
		if id, err = uuid.Parse(req.UUID); err != nil {
			return common.NewCreateCollectionResponse("", err)
		}
	}

	ns := catalog.ParseNamespace(req.NS)
	created, err := s.store.CreateCollection(s.writeCtx(req.Term), ns, id)
	if err != nil {
		return common.NewCreateCollectionResponse("", err)
	}
	return common.NewCreateCollectionResponse(created.String(), nil)
}

func (s *rpcServer) handleDropCollection(req *common.Message) *common.Message {
	ns := catalog.ParseNamespace(req.NS)
	dropOpTime, err := s.store.DropCollection(s.writeCtx(req.Term), ns)
	return common.NewDropCollectionResponse(uint64(dropOpTime.Ts), dropOpTime.Term, err)
}

func (s *rpcServer) handleDropDatabase(req *common.Message) *common.Message {
	err := s.store.DropDatabase(s.writeCtx(req.Term), req.DB, storage.DropDatabasePrimary)
	return common.NewDropDatabaseResponse(err)
}

func (s *rpcServer) handleListIdents(req *common.Message) *common.Message {
	at := clock.Timestamp(req.Ts)
	if at == clock.TimestampNull {
		at = clock.TimestampMax
	}
	return common.NewListIdentsResponse(s.store.Catalog().ListIdents(at), nil)
}

// --------------------------------------------------------------------------
// Engine Operations
// --------------------------------------------------------------------------

func (s *rpcServer) handleEngineInfo() *common.Message {
	info, err := json.Marshal(s.store.Engine().GetInfo())
	return common.NewEngineInfoResponse(info, err)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeCtx creates an operation context for a write. The term of the
// request takes precedence over the term the server was configured with.
func (s *rpcServer) writeCtx(term int64) *txn.OperationContext {
	opCtx := s.store.NewOperationContext()
	if term == 0 {
		term = s.config.Term
	}
	opCtx.SetTerm(term)
	return opCtx
}

// readCtx creates an operation context for a read. A zero timestamp reads
// the latest state, any other value pins the read to that snapshot.
func (s *rpcServer) readCtx(ts uint64) (*txn.OperationContext, error) {
	opCtx := s.store.NewOperationContext()
	if ts != 0 {
		if err := opCtx.RecoveryUnit().SelectSnapshot(clock.Timestamp(ts)); err != nil {
			return nil, err
		}
	}
	return opCtx, nil
}

// decodeID decodes a canonical JSON record id.
func decodeID(key []byte) (any, error) {
	var id any
	if err := json.Unmarshal(key, &id); err != nil {
		return nil, fmt.Errorf("invalid record id: %w", err)
	}
	return id, nil
}
