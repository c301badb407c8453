package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General request fields
	NS   string `json:"ns,omitempty"`   // Target namespace ("<db>.<collection>")
	DB   string `json:"db,omitempty"`   // Target database (ApplyOps, DoTxn, DropDatabase)
	Key  []byte `json:"key,omitempty"`  // Canonical record id (Find, Delete)
	Doc  []byte `json:"doc,omitempty"`  // Canonical document payload (Insert, Upsert)
	Ops  []byte `json:"ops,omitempty"`  // Oplog entry batch as a JSON array (ApplyOps, DoTxn)
	Mode string `json:"mode,omitempty"` // Apply mode: "atomic" or "nonatomic"
	Ts   uint64 `json:"ts,omitempty"`   // Read timestamp (Find, FindAll, Count, ListIdents)
	Term int64  `json:"term,omitempty"` // Election term of the requesting node
	UUID string `json:"uuid,omitempty"` // Collection UUID (CreateCollection)

	// Response only fields
	Ok      bool     `json:"ok,omitempty"`      // Used for: Find, Delete responses
	Applied int      `json:"applied,omitempty"` // Used for: ApplyOps, DoTxn responses
	Results []bool   `json:"results,omitempty"` // Used for: ApplyOps, DoTxn responses
	Value   []byte   `json:"value,omitempty"`   // Used for: Find (response)
	Values  [][]byte `json:"values,omitempty"`  // Used for: FindAll (response)
	Names   []string `json:"names,omitempty"`   // Used for: ListIdents (response)
	Count   int      `json:"count,omitempty"`   // Used for: Count (response)
	Err     string   `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewApplyOpsRequest creates a new ApplyOps request
func NewApplyOpsRequest(dbName string, ops []byte, mode string, term int64) *Message {
	return &Message{
		MsgType: MsgTApplyOps,
		DB:      dbName,
		Ops:     ops,
		Mode:    mode,
		Term:    term,
	}
}

// NewApplyOpsResponse creates a new ApplyOps response
func NewApplyOpsResponse(applied int, results []bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTApplyOps,
		Applied: applied,
		Results: results,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDoTxnRequest creates a new DoTxn request
func NewDoTxnRequest(dbName string, ops []byte, term int64) *Message {
	return &Message{
		MsgType: MsgTDoTxn,
		DB:      dbName,
		Ops:     ops,
		Term:    term,
	}
}

// NewDoTxnResponse creates a new DoTxn response
func NewDoTxnResponse(applied int, results []bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTDoTxn,
		Applied: applied,
		Results: results,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewInsertRequest creates a new Insert request
func NewInsertRequest(ns string, doc []byte) *Message {
	return &Message{
		MsgType: MsgTInsert,
		NS:      ns,
		Doc:     doc,
	}
}

// NewUpsertRequest creates a new Upsert request
func NewUpsertRequest(ns string, doc []byte) *Message {
	return &Message{
		MsgType: MsgTUpsert,
		NS:      ns,
		Doc:     doc,
	}
}

// NewWriteResponse creates a new response for Insert, Upsert and Delete
// requests. The response carries the commit timestamp of the write.
func NewWriteResponse(msgType MessageType, ts uint64, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Ts:      ts,
		Ok:      err == nil,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(ns string, key []byte) *Message {
	return &Message{
		MsgType: MsgTDelete,
		NS:      ns,
		Key:     key,
	}
}

// NewFindRequest creates a new Find request. A zero ts reads the latest
// state, any other value reads the snapshot at that timestamp.
func NewFindRequest(ns string, key []byte, ts uint64) *Message {
	return &Message{
		MsgType: MsgTFind,
		NS:      ns,
		Key:     key,
		Ts:      ts,
	}
}

// NewFindResponse creates a new Find response
func NewFindResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTFind,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewFindAllRequest creates a new FindAll request
func NewFindAllRequest(ns string, ts uint64) *Message {
	return &Message{
		MsgType: MsgTFindAll,
		NS:      ns,
		Ts:      ts,
	}
}

// NewFindAllResponse creates a new FindAll response
func NewFindAllResponse(values [][]byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTFindAll,
		Values:  values,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCountRequest creates a new Count request
func NewCountRequest(ns string, ts uint64) *Message {
	return &Message{
		MsgType: MsgTCount,
		NS:      ns,
		Ts:      ts,
	}
}

// NewCountResponse creates a new Count response
func NewCountResponse(count int, err error) *Message {
	msg := &Message{
		MsgType: MsgTCount,
		Count:   count,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCreateCollectionRequest creates a new CreateCollection request
func NewCreateCollectionRequest(ns string, collUUID string) *Message {
	return &Message{
		MsgType: MsgTCreateCollection,
		NS:      ns,
		UUID:    collUUID,
	}
}

// NewCreateCollectionResponse creates a new CreateCollection response
// carrying the UUID of the collection
func NewCreateCollectionResponse(collUUID string, err error) *Message {
	msg := &Message{
		MsgType: MsgTCreateCollection,
		UUID:    collUUID,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDropCollectionRequest creates a new DropCollection request
func NewDropCollectionRequest(ns string, term int64) *Message {
	return &Message{
		MsgType: MsgTDropCollection,
		NS:      ns,
		Term:    term,
	}
}

// NewDropCollectionResponse creates a new DropCollection response carrying
// the drop point of the namespace
func NewDropCollectionResponse(ts uint64, term int64, err error) *Message {
	msg := &Message{
		MsgType: MsgTDropCollection,
		Ts:      ts,
		Term:    term,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDropDatabaseRequest creates a new DropDatabase request
func NewDropDatabaseRequest(dbName string, term int64) *Message {
	return &Message{
		MsgType: MsgTDropDatabase,
		DB:      dbName,
		Term:    term,
	}
}

// NewDropDatabaseResponse creates a new DropDatabase response
func NewDropDatabaseResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTDropDatabase,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewListIdentsRequest creates a new ListIdents request. A zero ts lists the
// latest state, any other value lists the namespaces visible at that
// timestamp.
func NewListIdentsRequest(ts uint64) *Message {
	return &Message{
		MsgType: MsgTListIdents,
		Ts:      ts,
	}
}

// NewListIdentsResponse creates a new ListIdents response
func NewListIdentsResponse(names []string, err error) *Message {
	msg := &Message{
		MsgType: MsgTListIdents,
		Names:   names,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewEngineInfoRequest creates a new EngineInfo request
func NewEngineInfoRequest() *Message {
	return &Message{
		MsgType: MsgTEngineInfo,
	}
}

// NewEngineInfoResponse creates a new EngineInfo response. The value
// carries the engine statistics as a JSON document.
func NewEngineInfoResponse(info []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTEngineInfo,
		Value:   info,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTApplyOps:
		return "applyOps"
	case MsgTDoTxn:
		return "doTxn"
	case MsgTInsert:
		return "insert"
	case MsgTUpsert:
		return "upsert"
	case MsgTDelete:
		return "delete"
	case MsgTFind:
		return "find"
	case MsgTFindAll:
		return "findAll"
	case MsgTCount:
		return "count"
	case MsgTCreateCollection:
		return "createCollection"
	case MsgTDropCollection:
		return "dropCollection"
	case MsgTDropDatabase:
		return "dropDatabase"
	case MsgTListIdents:
		return "listIdents"
	case MsgTEngineInfo:
		return "engineInfo"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "applyOps":
		*t = MsgTApplyOps
	case "doTxn":
		*t = MsgTDoTxn
	case "insert":
		*t = MsgTInsert
	case "upsert":
		*t = MsgTUpsert
	case "delete":
		*t = MsgTDelete
	case "find":
		*t = MsgTFind
	case "findAll":
		*t = MsgTFindAll
	case "count":
		*t = MsgTCount
	case "createCollection":
		*t = MsgTCreateCollection
	case "dropCollection":
		*t = MsgTDropCollection
	case "dropDatabase":
		*t = MsgTDropDatabase
	case "listIdents":
		*t = MsgTListIdents
	case "engineInfo":
		*t = MsgTEngineInfo
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Replication operations

	MsgTApplyOps // Apply a batch of oplog entries
	MsgTDoTxn    // Apply a batch as one transaction

	// Document operations

	MsgTInsert  // Insert a document
	MsgTUpsert  // Insert or replace a document
	MsgTDelete  // Delete a document by id
	MsgTFind    // Find a document by id
	MsgTFindAll // List all documents of a collection
	MsgTCount   // Count the documents of a collection

	// Catalog operations

	MsgTCreateCollection // Create a collection
	MsgTDropCollection   // Drop a collection
	MsgTDropDatabase     // Drop all collections of a database
	MsgTListIdents       // List the namespaces visible at a timestamp

	// Engine operations

	MsgTEngineInfo // Report storage engine statistics
)
