// Package minio provides a BlobStore implementation for MinIO and other
// S3-compatible object stores.
package minio
