// Command crosswalkcheck validates a crosswalk table standalone: for every
// coarse unit it reports the weight sum and flags groups that violate the
// sum-to-one invariant, without running a derivation.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"metrocli/internal/ingest"
)

func main() {
	file := flag.String("file", "crosswalk.csv", "crosswalk CSV file to check")
	epsilon := flag.Float64("epsilon", 0.001, "allowed deviation of a coarse group's weight sum from 1.0")
	flag.Parse()

	if *epsilon <= 0 {
		slog.Error("epsilon must be positive", "epsilon", *epsilon)
		os.Exit(1)
	}

	cw, err := ingest.ReadCrosswalk(*file)
	if err != nil {
		slog.Error("failed to read crosswalk", "file", *file, "error", err)
		os.Exit(1)
	}

	byCoarse := cw.ByCoarse()
	coarseIDs := make([]string, 0, len(byCoarse))
	for id := range byCoarse {
		coarseIDs = append(coarseIDs, id)
	}
	sort.Strings(coarseIDs)

	violations := 0
	for _, id := range coarseIDs {
		sum := 0.0
		for _, row := range byCoarse[id] {
			sum += row.Weight
		}

		switch {
		case sum == 0:
			violations++
			fmt.Printf("%-20s rows=%-3d sum=%.6f  ZERO WEIGHT SUM\n", id, len(byCoarse[id]), sum)
		case math.Abs(sum-1.0) > *epsilon:
			violations++
			fmt.Printf("%-20s rows=%-3d sum=%.6f  OUT OF TOLERANCE (off by %+.6f)\n", id, len(byCoarse[id]), sum, sum-1.0)
		default:
			fmt.Printf("%-20s rows=%-3d sum=%.6f  ok\n", id, len(byCoarse[id]), sum)
		}
	}

	fmt.Printf("\n%d coarse units, %d rows, %d violations (epsilon %g)\n",
		len(coarseIDs), len(cw.Rows), violations, *epsilon)
	if violations > 0 {
		os.Exit(1)
	}
}
