// Package util provides utility components for
// storage engine implementations that satisfy the db.RecordEngine interface.
//
// The package contains:
//   - statistics: Utility tools for analyzing engine characteristics and a SizeHistogram for tracking data size distribution
//   - functions: Hash functions and other utility functions
//   - mapheap: A priority queue implementation for deferred reclamation that also supports key-based access
//
// This package is particularly useful for:
//   - Storage engine developers implementing the RecordEngine interface
//   - Implementation of deferred reclamation or other priority queue systems
//   - Monitoring systems that need to track engine size and distribution metrics
//
// Each component is designed to work with any implementation of the db.RecordEngine
// interface, allowing for consistent validation and measurement across different
// storage backends.
package util
