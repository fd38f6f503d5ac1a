package allocator

import (
	"math"
	"sort"
)

// apportion scales basis to sum to target using integer arithmetic. Each
// share is floored, then the remainder is handed out one unit at a time to
// the largest floored shares, earlier positions winning ties.
func apportion(basis []int, target int) []int {
	total := 0
	for _, b := range basis {
		total += b
	}
	if total == 0 {
		return equalSplit(target, len(basis))
	}

	shares := make([]int, len(basis))
	assigned := 0
	for i, b := range basis {
		shares[i] = b * target / total
		assigned += shares[i]
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return shares[order[x]] > shares[order[y]]
	})
	for n := 0; n < target-assigned; n++ {
		shares[order[n%len(order)]]++
	}
	return shares
}

// equalSplit divides target into n floored parts; the first target%n parts get one extra.
func equalSplit(target, n int) []int {
	shares := make([]int, n)
	if n == 0 {
		return shares
	}
	base, rem := target/n, target%n
	for i := range shares {
		shares[i] = base
		if i < rem {
			shares[i]++
		}
	}
	return shares
}

func round(v float64) int {
	return int(math.Round(v))
}
