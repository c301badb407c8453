// Package util
//
// This file provides a specialized priority queue for deferred reclamation
// purposes.
//
// This implementation combines a binary heap with a hash map to provide both
// efficient priority-based operations and key-based access. It's particularly
// useful for reclamation scenarios where items need to be prioritized by a
// timestamp, while still allowing direct access to specific items.
//
// Key advantages of this implementation:
//
// 1. Time Complexity:
//   - O(log n) for priority operations (Push, Pop, Update)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// 2. Reclamation Benefits:
//   - Efficiently identifies the oldest/lowest-priority items for collection
//   - Supports direct removal when items are manually freed
//   - Allows checking if specific items are scheduled for collection
//
// 3. Concurrency Considerations:
//   - Note: This implementation is not thread-safe by default
//   - For concurrent use, external synchronization should be applied
//
// Example usage:
//
//	// Create a new queue
//	queue := NewMapHeap()
//
//	// Add items with keys and timestamps
//	queue.AddItem("ident-1", timestamp1)
//	queue.AddItem("ident-2", timestamp2)
//
//	// Get the oldest item
//	oldest, exists := queue.Peek()
//
//	// Remove a specific item (e.g., when manually freed)
//	queue.RemoveByKey("ident-1")
//
//	// Process items in priority order
//	for queue.Len() > 0 {
//	    item, _ := queue.PopItem()
//	    // Process item for reclamation
//	}
package util

import (
	"container/heap"
	"strconv"
)

// Item represents an item in the reclamation queue with a string key for
// identification and a uint64 timestamp for priority
type Item struct {
	Key      string // Unique identifier for the item
	Priority uint64 // Priority used for ordering in the heap
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item) String() string {
	return "{Key: " + i.Key + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// MapHeap implements a priority queue for deferred reclamation
// with both heap operations and key-based access
type MapHeap struct {
	items    []*Item          // The actual heap slice
	itemsMap map[string]*Item // Map for O(1) access by key
}

// NewMapHeap creates a new reclamation queue
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[string]*Item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (mh *MapHeap) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface)
// Oldest items come first (min-heap by timestamp)
func (mh *MapHeap) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (mh *MapHeap) Push(x interface{}) {
	n := len(mh.items)
	item := x.(*Item)
	item.index = n
	mh.items = append(mh.items, item)
	mh.itemsMap[item.Key] = item
}

// Pop removes and returns the minimum item (part of heap.Interface)
func (mh *MapHeap) Pop() interface{} {
	old := mh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	mh.items = old[:n-1]
	delete(mh.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the queue or updates existing one
func (mh *MapHeap) AddItem(key string, priority uint64) {
	// Check if item already exists
	if item, exists := mh.itemsMap[key]; exists {
		// Update priority and fix heap
		item.Priority = priority
		heap.Fix(mh, item.index)
		return
	}

	// Create and add new item
	item := &Item{
		Key:      key,
		Priority: priority,
	}
	heap.Push(mh, item)
}

// RemoveByKey removes an item by its key
func (mh *MapHeap) RemoveByKey(key string) (uint64, bool) {
	item, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}

	// Remove from heap
	heap.Remove(mh, item.index)
	return item.Priority, true
}

// Peek returns the minimum priority item without removing it
func (mh *MapHeap) Peek() (*Item, bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// PopItem removes and returns the minimum priority item
func (mh *MapHeap) PopItem() (*Item, bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return heap.Pop(mh).(*Item), true
}

// Contains checks if a key exists in the queue
func (mh *MapHeap) Contains(key string) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (mh *MapHeap) GetByKey(key string) (*Item, bool) {
	item, exists := mh.itemsMap[key]
	return item, exists
}
