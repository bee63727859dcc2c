// Package minio stores backing blocks on MinIO or another S3-compatible
// server through the minio-go client.
//
//	client, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", false)
//	if err != nil {
//		return err
//	}
//	blobs := minio.NewStore(client, "blocks", minio.WithPrefix("spill"))
//	backend := backing.NewMatrixStore(blobs)
//
// Exports between two paths in the same bucket use CopyObject. Streamed
// writes upload in DefaultPartSize chunks.
package minio
