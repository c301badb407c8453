// Package client provides the client-side implementation of the RPC system,
// giving remote access to the versioned storage server.
//
// The package focuses on:
//   - Client-side RPC request handling for document, catalog and
//     replication operations
//   - Translation between method calls and wire messages
//   - Pluggable transport and serialization mechanisms
//
// Key Components:
//
//   - IStorageClient: Interface defining the client-side view of the
//     storage server. Documents and record ids travel as canonical JSON,
//     timestamps as raw logical timestamps (zero means "latest" on reads).
//
//   - NewRPCClient: Factory function creating a connected client with the
//     specified transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create client configuration
//	config := common.ClientConfig{
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	  TimeoutSecond: 5,
//	}
//
//	// Create the client
//	c, err := client.NewRPCClient(
//	  config,
//	  tcp.NewTCPClientTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//	if err != nil {
//	  log.Fatalf("Client error: %v", err)
//	}
//	defer c.Close()
//
//	// Insert a document
//	ts, err := c.Insert("test.coll", []byte(`{"_id":"a","x":1}`))
//
// Thread Safety:
//
//	The client is thread-safe as long as the underlying transport is. Both
//	the TCP/Unix socket transport and the HTTP transport support concurrent
//	use from multiple goroutines.
package client
