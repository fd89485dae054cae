// Package pools provides object pooling for reducing GC pressure.
//
// This package contains the pools the store's hot paths draw from:
//
//   - BytePool: Size-class based byte slice pooling (page and frame buffers)
//   - SlicePool: Size-class based pooling for typed slices (decoded pages)
//   - MapPool: Pooling for scratch maps (range scan resolution)
package pools
