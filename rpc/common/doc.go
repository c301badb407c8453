// Package common contains the shared pieces of the RPC layer: the wire
// message envelope with its factory functions, the server and client
// configuration structs and the logger setup.
//
// Every request and response travels as a single Message. The MsgType field
// selects the operation; which other fields are meaningful depends on it.
// Document payloads and oplog batches are carried pre-encoded as canonical
// JSON bytes so the envelope itself stays serializer-agnostic.
package common
