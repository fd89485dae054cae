package lsm

import (
	"testing"
)

// TestBloomFilter_BasicOperations tests Add/MayContain
func TestBloomFilter_BasicOperations(t *testing.T) {
	bf := NewBloomFilter(100, DefaultBitsPerEntry, HashFamily(DefaultHashCount))

	bf.Add(1)
	bf.Add(-2)
	bf.Add(3)

	for _, k := range []int32{1, -2, 3} {
		if !bf.MayContain(k) {
			t.Errorf("Expected filter to contain %d", k)
		}
	}
}

// TestBloomFilter_NoFalseNegatives tests that added keys are always found
func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	const n = 10000
	bf := NewBloomFilter(n, DefaultBitsPerEntry, HashFamily(DefaultHashCount))

	for i := int32(0); i < n; i++ {
		bf.Add(i * 7)
	}

	for i := int32(0); i < n; i++ {
		if !bf.MayContain(i * 7) {
			t.Fatalf("False negative for key %d", i*7)
		}
	}
}

// TestBloomFilter_FalsePositiveRate tests the rate stays under 10%
func TestBloomFilter_FalsePositiveRate(t *testing.T) {
	const n = 10000
	bf := NewBloomFilter(n, DefaultBitsPerEntry, HashFamily(DefaultHashCount))

	for i := int32(0); i < n; i++ {
		bf.Add(i)
	}

	falsePositives := 0
	const probes = 100000
	for i := int32(n); i < n+probes; i++ {
		if bf.MayContain(i) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / probes
	if rate >= 0.10 {
		t.Errorf("False positive rate %.4f, want < 0.10", rate)
	}
	t.Logf("False positive rate: %.4f (estimate %.4f)", rate, bf.EstimateFalsePositiveRate(n))
}

// TestBloomFilter_EmptyFilter tests that an empty filter contains nothing
func TestBloomFilter_EmptyFilter(t *testing.T) {
	bf := NewBloomFilter(0, DefaultBitsPerEntry, HashFamily(DefaultHashCount))

	bf.Add(5)
	if bf.MayContain(5) {
		t.Error("Zero-size filter should contain nothing")
	}
	if bf.Size() != 0 {
		t.Errorf("Size() = %d, want 0", bf.Size())
	}
	if bf.EstimateFalsePositiveRate(10) != 0 {
		t.Error("Zero-size filter should estimate 0")
	}
}

// TestBloomFilter_SizeCalculation tests sizing from record count
func TestBloomFilter_SizeCalculation(t *testing.T) {
	tests := []struct {
		records      int
		bitsPerEntry int
		want         int
	}{
		{1, 10, 10},
		{512, 10, 5120},
		{1000, 5, 5000},
	}

	for _, tt := range tests {
		bf := NewBloomFilter(tt.records, tt.bitsPerEntry, HashFamily(3))
		if bf.Size() != tt.want {
			t.Errorf("NewBloomFilter(%d, %d).Size() = %d, want %d", tt.records, tt.bitsPerEntry, bf.Size(), tt.want)
		}
	}
}

// TestBloomFilter_HashCount tests the family size is honored
func TestBloomFilter_HashCount(t *testing.T) {
	for n := 1; n <= MaxHashFunctions; n++ {
		bf := NewBloomFilter(10, 10, HashFamily(n))
		if bf.HashCount() != n {
			t.Errorf("HashCount() = %d, want %d", bf.HashCount(), n)
		}
	}
}

// TestHashFamily_Range tests that out of range sizes panic
func TestHashFamily_Range(t *testing.T) {
	for _, n := range []int{0, MaxHashFunctions + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("HashFamily(%d) should panic", n)
				}
			}()
			HashFamily(n)
		}()
	}
}

// TestHashFunc_Independent tests that family members disagree
func TestHashFunc_Independent(t *testing.T) {
	family := HashFamily(MaxHashFunctions)
	for i := range family {
		for j := i + 1; j < len(family); j++ {
			same := 0
			for k := int32(0); k < 100; k++ {
				if family[i].Sum(k) == family[j].Sum(k) {
					same++
				}
			}
			if same > 0 {
				t.Errorf("%s and %s collide on %d of 100 keys", family[i], family[j], same)
			}
		}
	}
}

// TestBloomFilter_EstimateFalsePositiveRate tests the estimate grows with load
func TestBloomFilter_EstimateFalsePositiveRate(t *testing.T) {
	bf := NewBloomFilter(1000, 10, HashFamily(3))

	low := bf.EstimateFalsePositiveRate(100)
	high := bf.EstimateFalsePositiveRate(1000)
	if low >= high {
		t.Errorf("Estimate should grow with items: %.4f >= %.4f", low, high)
	}
	if high > 0.05 {
		t.Errorf("Estimate at design load = %.4f, want <= 0.05", high)
	}
}
