// Package server implements the RPC server for the versioned storage system.
// It hosts the storage stack (record engine, logical clock, catalog-aware
// store) together with the replication applier and exposes every storage
// operation over a pluggable transport.
//
// The package focuses on:
//   - Server-side RPC request handling for document, catalog and
//     replication operations
//   - Translation between wire messages and storage layer calls
//   - Background finalization of two-phase collection drops
//
// Key Components:
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer mechanisms.
//
//   - handle: Dispatches a decoded request message to the storage layer and
//     builds the response for it. Timestamped reads are pinned to the
//     requested snapshot, writes carry the election term of the request.
//
//   - reapLoop: Periodically finalizes drop-pending collections whose drop
//     point has fallen below the history retention floor.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  Term:          1,
//	  LogLevel:      "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent
//	requests across multiple connections. Each request is processed
//	independently. The Serve method is not thread-safe and should be called
//	only once.
package server
