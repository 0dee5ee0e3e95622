// Package mmap provides read-only memory-mapped file access.
//
// Snapshot files holding large embedding sets are read through a mapping so
// loads avoid copying file contents through intermediate buffers.
//
// Usage:
//
//	m, err := mmap.Open("snapshot.ivs")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//
//	// Create a view into a specific section
//	region, _ := m.Region(offset, size)
//
//	// Provide kernel hints for access patterns
//	m.Advise(mmap.AccessSequential)
//
// Unix platforms use mmap(2) with madvise(2) for access hints; Windows uses
// CreateFileMapping/MapViewOfFile and treats advice as a no-op.
//
// Mapping and Region are safe for concurrent read access and Close is
// idempotent, but callers must ensure no goroutine touches Bytes() after
// Close() returns.
package mmap
