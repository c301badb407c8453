// Package cmd implements the command-line interface for the tKV
// timestamp-versioned document store. It provides a hierarchical command
// structure with operations for running the server and interacting with it
// as a client.
//
// The package is organized into several subpackages:
//
//   - store: Commands for document and catalog operations (insert, get, drop, etc.)
//   - oplog: Commands for applying oplog entry batches and benchmarking
//   - serve: Commands for starting and configuring the tKV server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See tkv -help for a list of all commands.
package cmd
