package spill

// Block is a unit of in-memory data managed by an Envelope.
type Block interface {
	// InMemorySize returns the block's estimated heap footprint in bytes.
	InMemorySize() int64

	// CompactEmpty releases storage held for empty regions. Called when a
	// writer releases its lock.
	CompactEmpty()

	// Dims returns the logical shape used to refresh Meta.
	Dims() (rows, cols, nnz int64)
}

// Codec serializes blocks to and from eviction file payloads.
type Codec[T Block] interface {
	Marshal(b T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// Meta describes a block's shape and its on-disk format.
type Meta struct {
	Rows   int64  `json:"rows"`
	Cols   int64  `json:"cols"`
	NNZ    int64  `json:"nnz"`
	Format string `json:"format"`
}

// WriteOptions are passed to Backend writes.
type WriteOptions struct {
	Replication int
	Props       map[string]string
	Meta        Meta
}
