// Package pairgo finds approximate k-nearest-neighbor relationships among
// large collections of sparse expression vectors, using Pearson correlation
// as the similarity metric.
//
// The engine persists three kinds of named objects in a storage directory:
// gene/cell subsets, LSH signature sets, and top-k neighbor indexes. Four
// search strategies fill indexes:
//
//   - FindSimilarPairsExact: exact correlation over all O(N²) pairs.
//   - FindSimilarPairsApprox: the same loop over cheap signature Hamming
//     estimates.
//   - FindSimilarPairsBucketed: sub-quadratic slice-bucket search over a
//     persisted signature set.
//   - FindSimilarPairsCharikar: permutation-based approximate
//     nearest-neighbor search (Charikar's algorithm).
//
// The approximate strategies trade recall for cost through explicit knobs
// (signature bit count, bucket overflow cap, per-cell candidate caps);
// shortfalls are silent and deterministic, never errors.
//
// Basic usage:
//
//	m := expr.NewSparseMatrix(geneCount, cellCount)
//	// ... m.Add(cell, gene, count) ...
//
//	eng, err := pairgo.New(m, "./data")
//	if err != nil { ... }
//
//	err = eng.FindSimilarPairsExact(ctx, pairgo.AllGenes, pairgo.AllCells,
//		"exact", 10, 0.5)
//
//	idx, err := eng.OpenIndex(ctx, "exact")
//	defer idx.Close()
//	neighbors, err := idx.Neighbors(0) // closest first
//
// Finalized indexes can be exported as CSV, published to blob storage
// (local, S3, MinIO) with a manifest, and registered in a run catalog; see
// the archive and blobstore packages.
package pairgo
