// Package evictfile defines the on-disk layout of eviction files.
//
// An eviction file holds one encoded block behind a fixed header:
//
//	┌──────┬─────┬───────┬──────────┬─────────┬───────────┬────────┐
//	│ SPIL │ ver │ codec │ reserved │ raw len │ stored len│ crc32c │
//	│  4B  │ 1B  │  1B   │    2B    │   8B    │    8B     │   4B   │
//	└──────┴─────┴───────┴──────────┴─────────┴───────────┴────────┘
//
// All integers are little endian. The checksum covers the uncompressed
// payload, so both a torn write and a bad decompression are detected on
// restore. A payload is stored raw when compression saves less than 10%.
//
// File names follow <dir>/<prefix><id zero-padded to 9 digits><ext>.
package evictfile
