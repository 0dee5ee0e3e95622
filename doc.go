// Package imgvec provides embedded visual similarity search for Go.
//
// Given a query image, imgvec returns the k most visually similar images
// from a reference corpus. Images are converted to fixed-length embeddings
// by a feature extractor, indexed in a vector index, and queried with
// k-nearest-neighbor search.
//
//   - extractor: converts images to embeddings via a remote model service,
//     with shared preprocessing on both the ingestion and query path
//   - ingest: streams a corpus through the extractor into the index on a
//     bounded worker pool
//   - index, index/flat, index/hnsw: exact and approximate vector indexes
//   - blobstore: snapshot storage on local disk, S3 or MinIO
//
// # Quick Start
//
//	ctx := context.Background()
//
//	db, err := imgvec.New(2048, imgvec.Euclidean)
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
//	ext, err := extractor.NewHTTPExtractor("http://localhost:8501/embed")
//	if err != nil {
//	    panic(err)
//	}
//
//	pipeline := ingest.New(ext, db)
//	result, err := pipeline.Run(ctx, corpusSource)
//
//	svc := imgvec.NewService(ext, db)
//	hits, err := svc.SearchByImage(ctx, queryImage, 10)
//
// # Index Selection
//
// The exactness/approximation tradeoff is an explicit configuration choice:
// the default flat index computes exact results and is fine below roughly
// tens of thousands of entries; pass WithHNSW for sub-linear approximate
// search beyond that.
//
// # Persistence
//
// SaveToFile/SaveToStore write a self-describing snapshot (identifier ->
// vector, metadata plus a {dimension, metric} header) sufficient to
// reconstruct the index without reprocessing images. LoadFromFile/
// LoadFromStore rebuild the configured index kind from it.
package imgvec
