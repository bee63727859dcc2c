// Package backing persists blocks to object storage for spill envelopes.
//
// A [Store] implements spill.Backend over a blobstore.BlobStore. Each
// block is written as a data object in one of the block package formats,
// next to a small metadata sidecar named <path>.mtd that records the
// shape, format, replication and user properties:
//
//	{"rows":1000,"cols":20,"nnz":19876,"format":"binary","replication":1}
//
// Reads consult the sidecar to pick the format and the expected shape.
//
// A [Router] dispatches paths to stores by URL scheme, so envelopes can
// move data between a local scratch directory and S3 with one backend:
//
//	r := backing.NewRouter[*block.Matrix](backing.NewMatrixStore(blobstore.NewLocalStore("/data")))
//	r.Handle("s3", backing.NewMatrixStore(s3store))
package backing
