package lsm

import "fmt"

// HashFunc is one member of the fixed family of seeded integer hashes shared
// by every Bloom filter. It is a plain value; there is no captured state.
type HashFunc uint8

// MaxHashFunctions is the size of the hash family
const MaxHashFunctions = 8

var hashSeeds = [MaxHashFunctions]uint64{
	0xEA529C2C, 0x9275AD99, 0xADFA52D9, 0x5BD1E995,
	0xCC9E2D51, 0x1B873593, 0x85EBCA6B, 0xC2B2AE35,
}

// Sum hashes key with the function's seed using the splitmix64 finalizer
func (h HashFunc) Sum(key int32) uint64 {
	x := uint64(uint32(key)) ^ hashSeeds[h]
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func (h HashFunc) String() string {
	return fmt.Sprintf("hash%d", uint8(h))
}

// HashFamily returns the first n functions of the family
func HashFamily(n int) []HashFunc {
	if n < 1 || n > MaxHashFunctions {
		panic(fmt.Sprintf("lsm: hash family size %d out of range [1,%d]", n, MaxHashFunctions))
	}
	family := make([]HashFunc, n)
	for i := range family {
		family[i] = HashFunc(i)
	}
	return family
}
