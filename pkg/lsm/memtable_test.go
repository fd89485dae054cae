package lsm

import (
	"math"
	"math/rand"
	"testing"
)

// TestMemTable_BasicOperations tests basic Put/Get operations
func TestMemTable_BasicOperations(t *testing.T) {
	mt := NewMemTable(1024)

	if !mt.Put(1, 10) {
		t.Error("Put of a new key should report a new node")
	}

	value, ok := mt.Get(1)
	if !ok {
		t.Fatal("Key not found after Put")
	}
	if value != 10 {
		t.Errorf("Get(1) = %d, want 10", value)
	}

	if _, ok := mt.Get(2); ok {
		t.Error("Expected key 2 to be absent")
	}
}

// TestMemTable_UpdateValue tests that overwriting keeps one node
func TestMemTable_UpdateValue(t *testing.T) {
	mt := NewMemTable(1024)

	mt.Put(5, 50)
	if mt.Put(5, 51) {
		t.Error("Overwrite should not create a node")
	}

	value, _ := mt.Get(5)
	if value != 51 {
		t.Errorf("Get(5) = %d, want 51", value)
	}
	if mt.Len() != 1 {
		t.Errorf("Len() = %d, want 1", mt.Len())
	}
}

// TestMemTable_SizeTracking tests that only new keys grow the size
func TestMemTable_SizeTracking(t *testing.T) {
	mt := NewMemTable(1024)

	if mt.Size() != 0 {
		t.Errorf("Initial size = %d, want 0", mt.Size())
	}

	mt.Put(1, 1)
	mt.Put(2, 2)
	mt.Put(1, 3)
	mt.Put(2, Tombstone)

	if mt.Size() != 2*RecordSize {
		t.Errorf("Size() = %d, want %d", mt.Size(), 2*RecordSize)
	}
}

// TestMemTable_IsFull tests the flush threshold
func TestMemTable_IsFull(t *testing.T) {
	mt := NewMemTable(3 * RecordSize)

	mt.Put(1, 1)
	mt.Put(2, 2)
	if mt.IsFull() {
		t.Error("Two records should not fill a three record table")
	}

	mt.Put(2, 20)
	if mt.IsFull() {
		t.Error("Overwrite must not fill the table")
	}

	mt.Put(3, 3)
	if !mt.IsFull() {
		t.Error("Expected table to be full after third key")
	}
}

// TestMemTable_Records tests in-order traversal
func TestMemTable_Records(t *testing.T) {
	mt := NewMemTable(1 << 20)

	keys := []int32{50, -3, 7, 100, 0, math.MinInt32 + 1, math.MaxInt32, 42}
	for _, k := range keys {
		mt.Put(k, k*2)
	}

	records := mt.Records()
	if len(records) != len(keys) {
		t.Fatalf("Records() returned %d records, want %d", len(records), len(keys))
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].Key >= records[i].Key {
			t.Errorf("Records not strictly ascending at %d: %d >= %d", i, records[i-1].Key, records[i].Key)
		}
	}
}

// TestMemTable_Scan tests inclusive range scans
func TestMemTable_Scan(t *testing.T) {
	mt := NewMemTable(1 << 20)
	for k := int32(0); k < 20; k += 2 {
		mt.Put(k, k)
	}
	mt.Put(8, Tombstone)

	tests := []struct {
		name   string
		lo, hi int32
		want   []int32
	}{
		{"inner", 3, 9, []int32{4, 6, 8}},
		{"inclusive bounds", 4, 8, []int32{4, 6, 8}},
		{"single key", 6, 6, []int32{6}},
		{"below all", -10, -1, nil},
		{"above all", 100, 200, nil},
		{"inverted", 9, 3, nil},
		{"everything", math.MinInt32, math.MaxInt32, []int32{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mt.Scan(tt.lo, tt.hi)
			if len(got) != len(tt.want) {
				t.Fatalf("Scan(%d, %d) returned %d records, want %d", tt.lo, tt.hi, len(got), len(tt.want))
			}
			for i, r := range got {
				if r.Key != tt.want[i] {
					t.Errorf("record %d key = %d, want %d", i, r.Key, tt.want[i])
				}
			}
		})
	}
}

// TestMemTable_TombstonesInScan tests that the memtable reports tombstones
// as records so the database can shadow older levels
func TestMemTable_TombstonesInScan(t *testing.T) {
	mt := NewMemTable(1024)
	mt.Put(1, 1)
	mt.Put(2, Tombstone)

	got := mt.Scan(1, 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
	if !got[1].IsTombstone() {
		t.Error("Expected record for key 2 to be a tombstone")
	}
}

// TestMemTable_Balanced tests the AVL height bound on sequential inserts
func TestMemTable_Balanced(t *testing.T) {
	mt := NewMemTable(1 << 24)

	const n = 1 << 14
	for i := int32(0); i < n; i++ {
		mt.Put(i, i)
	}

	// An AVL tree with n nodes has height below 1.45*log2(n+2)
	limit := int(1.45*math.Log2(n+2)) + 1
	if mt.Height() > limit {
		t.Errorf("Height() = %d after %d sequential inserts, want <= %d", mt.Height(), n, limit)
	}
}

// TestMemTable_RandomAgainstMap compares against a map model
func TestMemTable_RandomAgainstMap(t *testing.T) {
	mt := NewMemTable(1 << 24)
	model := make(map[int32]int32)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		k := int32(rng.Intn(1000) - 500)
		v := rng.Int31()
		mt.Put(k, v)
		model[k] = v
	}

	if mt.Len() != len(model) {
		t.Fatalf("Len() = %d, want %d", mt.Len(), len(model))
	}
	for k, want := range model {
		got, ok := mt.Get(k)
		if !ok || got != want {
			t.Errorf("Get(%d) = %d, %v; want %d", k, got, ok, want)
		}
	}
}

// TestMemTable_EmptyScans tests scans on an empty table
func TestMemTable_EmptyScans(t *testing.T) {
	mt := NewMemTable(1024)

	if got := mt.Scan(0, 100); len(got) != 0 {
		t.Errorf("Expected empty scan, got %d records", len(got))
	}
	if got := mt.Records(); len(got) != 0 {
		t.Errorf("Expected no records, got %d", len(got))
	}
	if mt.Height() != 0 {
		t.Errorf("Height() = %d, want 0", mt.Height())
	}
}
