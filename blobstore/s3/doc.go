// Package s3 stores backing blocks in an Amazon S3 bucket.
//
//	blobs, err := s3.New(ctx, "blocks", s3.WithPrefix("spill"), s3.WithRegion("eu-central-1"))
//	if err != nil {
//		return err
//	}
//	backend := backing.NewMatrixStore(blobs)
//
// Block reads use ranged GetObject requests. Large writes go through the
// multipart uploader with CRC32C checksums, and exports within the bucket
// use CopyObject.
package s3
