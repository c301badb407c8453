package client

import (
	"github.com/tkv-io/tKV/rpc/common"
	"github.com/tkv-io/tKV/rpc/serializer"
	"github.com/tkv-io/tKV/rpc/transport"
)

// IStorageClient is the client-side view of the versioned storage server.
// All timestamps are the raw logical timestamps of the server, a zero
// timestamp on a read means "latest".
type IStorageClient interface {
	// ApplyOps applies a batch of oplog entries. The ops parameter carries
	// the batch as a JSON array, mode is either "atomic" or "nonatomic".
	// It returns the number of applied entries and the per-entry results.
	ApplyOps(dbName string, ops []byte, mode string, term int64) (applied int, results []bool, err error)

	// DoTxn applies a batch of oplog entries as a single transaction.
	DoTxn(dbName string, ops []byte, term int64) (applied int, results []bool, err error)

	// Insert inserts a document and returns its commit timestamp.
	Insert(ns string, doc []byte) (ts uint64, err error)

	// Upsert inserts or replaces a document and returns its commit timestamp.
	Upsert(ns string, doc []byte) (ts uint64, err error)

	// Delete removes a document by id and returns the commit timestamp of
	// the deletion.
	Delete(ns string, key []byte) (ts uint64, err error)

	// Find looks up a document by id at the given timestamp.
	Find(ns string, key []byte, ts uint64) (doc []byte, ok bool, err error)

	// FindAll returns all documents of a collection at the given timestamp.
	FindAll(ns string, ts uint64) (docs [][]byte, err error)

	// Count returns the number of documents of a collection at the given
	// timestamp.
	Count(ns string, ts uint64) (count int, err error)

	// CreateCollection creates a collection. An empty collUUID lets the
	// server assign one. It returns the UUID of the collection.
	CreateCollection(ns string, collUUID string) (string, error)

	// DropCollection drops a collection and returns its drop point.
	DropCollection(ns string, term int64) (ts uint64, t int64, err error)

	// DropDatabase drops all collections of a database.
	DropDatabase(dbName string, term int64) error

	// ListIdents returns the namespaces visible at the given timestamp.
	ListIdents(ts uint64) ([]string, error)

	// EngineInfo returns statistics about the server's storage engine as
	// a JSON document.
	EngineInfo() ([]byte, error)

	// Close tears down the underlying transport.
	Close() error
}

// NewRPCClient creates a new client for the storage server. The function
// takes a config, a transport and a serializer as parameters, connects the
// transport and returns the client.
func NewRPCClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IStorageClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Return the RPC client
	return &rpcClient{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

type rpcClient struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IStorageClient)
// --------------------------------------------------------------------------

func (c *rpcClient) ApplyOps(dbName string, ops []byte, mode string, term int64) (int, []bool, error) {
	req := common.NewApplyOpsRequest(dbName, ops, mode, term)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, nil, err
	}
	return resp.Applied, resp.Results, nil
}

func (c *rpcClient) DoTxn(dbName string, ops []byte, term int64) (int, []bool, error) {
	req := common.NewDoTxnRequest(dbName, ops, term)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, nil, err
	}
	return resp.Applied, resp.Results, nil
}

func (c *rpcClient) Insert(ns string, doc []byte) (uint64, error) {
	req := common.NewInsertRequest(ns, doc)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, err
	}
	return resp.Ts, nil
}

func (c *rpcClient) Upsert(ns string, doc []byte) (uint64, error) {
	req := common.NewUpsertRequest(ns, doc)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, err
	}
	return resp.Ts, nil
}

func (c *rpcClient) Delete(ns string, key []byte) (uint64, error) {
	req := common.NewDeleteRequest(ns, key)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, err
	}
	return resp.Ts, nil
}

func (c *rpcClient) Find(ns string, key []byte, ts uint64) ([]byte, bool, error) {
	req := common.NewFindRequest(ns, key, ts)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (c *rpcClient) FindAll(ns string, ts uint64) ([][]byte, error) {
	req := common.NewFindAllRequest(ns, ts)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *rpcClient) Count(ns string, ts uint64) (int, error) {
	req := common.NewCountRequest(ns, ts)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *rpcClient) CreateCollection(ns string, collUUID string) (string, error) {
	req := common.NewCreateCollectionRequest(ns, collUUID)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return "", err
	}
	return resp.UUID, nil
}

func (c *rpcClient) DropCollection(ns string, term int64) (uint64, int64, error) {
	req := common.NewDropCollectionRequest(ns, term)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, 0, err
	}
	return resp.Ts, resp.Term, nil
}

func (c *rpcClient) DropDatabase(dbName string, term int64) error {
	req := common.NewDropDatabaseRequest(dbName, term)
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

func (c *rpcClient) ListIdents(ts uint64) ([]string, error) {
	req := common.NewListIdentsRequest(ts)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

func (c *rpcClient) EngineInfo() ([]byte, error) {
	req := common.NewEngineInfoRequest()
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (c *rpcClient) Close() error {
	return c.transport.Close()
}
