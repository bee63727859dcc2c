// Package hash provides the checksum used to validate eviction files.
//
// Every eviction file carries the CRC32-Castagnoli checksum of its
// uncompressed payload. Go's crc32 package uses SSE4.2 or the ARM CRC
// extension for this polynomial when available.
//
//	sum := hash.CRC32C(payload)
//	ok := hash.VerifyCRC32C(restored, sum)
package hash
