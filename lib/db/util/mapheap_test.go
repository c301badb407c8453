package util

import (
	"container/heap"
	"fmt"
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	// Add a few items
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	// Check if items exist
	for _, key := range []string{"a", "b", "c"} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %s", key)
		}
	}

	// Check the order (min heap, so the lowest value should be first)
	item, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}

	if item.Key != "c" || item.Priority != 50 {
		t.Errorf("Expected min item to be (c,50), got (%s,%d)", item.Key, item.Priority)
	}
}

// TestUpdateItem tests updating existing items
func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	// Add items
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)

	// Update an item
	mh.AddItem("a", 300) // Increase priority of item a

	// Check if update worked
	item, exists := mh.GetByKey("a")
	if !exists {
		t.Fatal("Item with key a should exist")
	}

	if item.Priority != 300 {
		t.Errorf("Item with key a should have priority 300, got %d", item.Priority)
	}

	// Check if heap property is maintained
	min, _ := mh.Peek()
	if min.Key != "b" {
		t.Errorf("Min item should now be key b, got %s", min.Key)
	}

	// Update to lower value
	mh.AddItem("b", 50)

	min, _ = mh.Peek()
	if min.Key != "b" || min.Priority != 50 {
		t.Errorf("Min item should now be (b,50), got (%s,%d)", min.Key, min.Priority)
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	// Remove item with key b
	value, exists := mh.RemoveByKey("b")

	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}

	if value != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", value)
	}

	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}

	if mh.Contains("b") {
		t.Error("Heap should not contain key b after removal")
	}

	// Try to remove non-existent key
	_, exists = mh.RemoveByKey("nonexistent")
	if exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in correct order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	// Add items in random order
	items := []struct {
		key      string
		priority uint64
	}{
		{"e", 50},
		{"c", 30},
		{"a", 10},
		{"d", 40},
		{"b", 20},
	}

	for _, item := range items {
		mh.AddItem(item.key, item.priority)
	}

	// Sort the items for comparison
	sort.Slice(items, func(i, j int) bool {
		return items[i].priority < items[j].priority
	})

	// Pop all items and verify order
	for i, expected := range items {
		if mh.Len() == 0 {
			t.Fatalf("Heap empty after %d items, expected %d items", i, len(items))
		}

		item, _ := mh.PopItem()
		if item.Key != expected.key || item.Priority != expected.priority {
			t.Errorf("Pop %d: expected (%s,%d), got (%s,%d)",
				i, expected.key, expected.priority, item.Key, item.Priority)
		}
	}

	if mh.Len() != 0 {
		t.Errorf("Heap should be empty after popping all items, has %d items", mh.Len())
	}
}

// TestPeekEmptyHeap tests behavior when peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}

	if _, exists := mh.PopItem(); exists {
		t.Error("PopItem on empty heap should return exists=false")
	}
}

// TestGetByKey tests retrieving items by key
func TestGetByKey(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)

	// Get existing item
	item, exists := mh.GetByKey("a")
	if !exists {
		t.Fatal("GetByKey should find existing key")
	}

	if item.Key != "a" || item.Priority != 100 {
		t.Errorf("GetByKey returned incorrect item: expected (a,100), got (%s,%d)",
			item.Key, item.Priority)
	}

	// Get non-existent item
	if _, exists = mh.GetByKey("nonexistent"); exists {
		t.Error("GetByKey should return exists=false for non-existent key")
	}
}

// TestLargeNumberOfItems tests heap behavior with many items
func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap()
	heap.Init(mh)

	const count = 1000
	for i := 0; i < count; i++ {
		mh.AddItem(fmt.Sprintf("key-%d", i), uint64((i*7919)%count))
	}

	if mh.Len() != count {
		t.Fatalf("Heap should have %d items, has %d", count, mh.Len())
	}

	// Pop everything and verify non-decreasing priority order
	var last uint64
	for i := 0; i < count; i++ {
		item, exists := mh.PopItem()
		if !exists {
			t.Fatalf("Heap empty after %d items", i)
		}
		if item.Priority < last {
			t.Fatalf("Pop %d: priority %d is lower than previous %d", i, item.Priority, last)
		}
		last = item.Priority
	}
}
