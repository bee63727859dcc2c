// Package blobstore provides the object storage abstraction that backing
// stores persist blocks to.
//
// BlobStore is the interface for reading and writing data blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap reads and atomic writes
//   - MemoryStore: In-memory store for tests
//   - s3.Store: Amazon S3 with range reads, multipart uploads and server-side copy
//   - minio.Store: MinIO and other S3-compatible services
//
// # Optional Capabilities
//
// Stores that can duplicate or move objects without a round trip through
// the client implement Copier and Renamer. The package-level Copy and
// Rename helpers use them when available and fall back to read, write and
// delete otherwise.
package blobstore
