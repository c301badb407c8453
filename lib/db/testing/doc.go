// Package testing provides standardised tests and benchmarks for
// engine implementations that satisfy the db.RecordEngine interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the RecordEngine interface contract
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// This package is particularly useful for:
//   - Applications that need to select the most appropriate engine implementation
//     based on performance characteristics
//   - Engine developers implementing the RecordEngine interface
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.RecordEngine {
//		return NewMyEngine()
//	}
//
//	// Running the standard test suite
//	testing.RunRecordEngineTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	testing.RunRecordEngineBenchmarks(b, "MyEngine", factory)
package testing
