// Package rpc provides a comprehensive framework for remote procedure calls
// in the tKV versioned storage system. It acts as the communication layer
// between clients and servers, enabling operations across network boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC client implementation giving remote access to the document,
//     catalog and replication operations of the storage server.
//
//   - server: RPC server components that host the storage stack and dispatch
//     incoming requests to it.
package rpc
