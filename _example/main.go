package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/hupe1980/pairgo"
	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
)

func main() {
	seed := int64(4711)
	geneCount := 500
	cellCount := 2000
	clusterCount := 20
	k := 10
	threshold := 0.8

	dir, err := os.MkdirTemp("", "pairgo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	fmt.Println("--- Data ---")
	fmt.Println("Genes:", geneCount)
	fmt.Println("Cells:", cellCount)
	fmt.Println("Clusters:", clusterCount)
	fmt.Println()

	m := clusteredMatrix(seed, geneCount, cellCount, clusterCount)

	eng, err := pairgo.New(m, dir, pairgo.WithWorkers(8))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	fmt.Println("--- Exact ---")
	start := time.Now()
	if err := eng.FindSimilarPairsExact(ctx, pairgo.AllGenes, pairgo.AllCells, "exact", k, threshold); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Seconds: %.2f\n", time.Since(start).Seconds())
	printIndex(ctx, eng, "exact")

	fmt.Println("--- Signatures ---")
	start = time.Now()
	if err := eng.ComputeSignatures(ctx, pairgo.AllGenes, pairgo.AllCells, "lsh", 1024, 42); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- Bucketed ---")
	start = time.Now()
	if err := eng.FindSimilarPairsBucketed(ctx, pairgo.AllGenes, pairgo.AllCells, "lsh", "bucketed",
		k, threshold, []int{24, 16, 8}, 2000, 14, 0); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Seconds: %.2f\n", time.Since(start).Seconds())
	printIndex(ctx, eng, "bucketed")

	fmt.Println("--- Charikar ---")
	start = time.Now()
	if err := eng.FindSimilarPairsCharikar(ctx, pairgo.AllGenes, pairgo.AllCells, "lsh", "charikar",
		k, threshold, 16, 128, 64, 7); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Seconds: %.2f\n", time.Since(start).Seconds())
	printIndex(ctx, eng, "charikar")

	fmt.Println("--- Agreement ---")
	for _, name := range []string{"bucketed", "charikar"} {
		cmp, err := eng.ComparePairs(ctx, "exact", name)
		if err != nil {
			log.Fatal(err)
		}
		recall := float64(cmp.Common) / float64(cmp.Common+cmp.OnlyA)
		fmt.Printf("exact vs %s: common %d, missed %d, recall %.3f\n", name, cmp.Common, cmp.OnlyA, recall)
	}
}

// clusteredMatrix builds cellCount cells in clusterCount groups sharing noisy
// prototype expression vectors, so each cell has genuinely similar neighbors.
func clusteredMatrix(seed int64, geneCount, cellCount, clusterCount int) *expr.SparseMatrix {
	rng := rand.New(rand.NewSource(seed))

	prototypes := make([][]float64, clusterCount)
	for p := range prototypes {
		proto := make([]float64, geneCount)
		for g := range proto {
			if rng.Float64() < 0.3 {
				proto[g] = rng.Float64() * 100
			}
		}
		prototypes[p] = proto
	}

	m := expr.NewSparseMatrix(geneCount, cellCount)
	for c := 0; c < cellCount; c++ {
		proto := prototypes[c%clusterCount]
		for g, v := range proto {
			if v == 0 {
				continue
			}
			count := v + rng.NormFloat64()*3
			if count < 0.5 {
				continue
			}
			if err := m.Add(core.GlobalID(c), core.GlobalID(g), float32(count)); err != nil {
				log.Fatal(err)
			}
		}
	}
	return m
}

func printIndex(ctx context.Context, eng *pairgo.Engine, name string) {
	idx, err := eng.OpenIndex(ctx, name)
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	total := 0
	for i := 0; i < idx.ItemCount(); i++ {
		list, err := idx.Neighbors(core.LocalID(i))
		if err != nil {
			log.Fatal(err)
		}
		total += len(list)
	}
	fmt.Printf("Stored entries: %d\n\n", total)
}
