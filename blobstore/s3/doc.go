// Package s3 provides BlobStore implementations backed by Amazon S3.
//
// Store reads blobs with ranged GetObject calls and writes them through the
// upload manager. CommitStore layers a DynamoDB pointer on top of a Store so
// concurrent writers can publish snapshots with compare-and-swap semantics
// that S3 alone lacks.
package s3
