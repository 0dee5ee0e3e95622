// Package blobstore provides storage abstraction for snapshot blobs.
//
// BlobStore is the interface for reading and writing immutable blobs
// (snapshots of the embedding database). Implementations must be safe for
// concurrent use.
//
// Built-in implementations:
//
//   - LocalStore: local filesystem, reads are memory-mapped
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with range reads and managed uploads
//   - s3.CommitStore: S3 plus a DynamoDB pointer for atomic snapshot commits
//   - minio.Store: MinIO and other S3-compatible storage
package blobstore
