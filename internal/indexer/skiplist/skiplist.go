// Package skiplist places evenly spaced skip pointers on sorted postings
// lists. A list of length L >= 3 gets a pointer every floor(sqrt(L))
// positions; once fewer than ceil(sqrt(L)) elements remain, the last
// pointer jumps straight to the final element.
package skiplist

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
)

// MinLength is the shortest list that receives skip pointers.
const MinLength = 3

// Build returns, for a list of n elements, the skip target of every
// position (index.NoSkip where there is none). It returns nil for n <
// MinLength.
func Build(n int) []int32 {
	if n < MinLength {
		return nil
	}
	interval := int(math.Floor(math.Sqrt(float64(n))))
	tail := int(math.Ceil(math.Sqrt(float64(n))))

	anchors := make([]int, 0, n/interval+2)
	for i := 0; i <= n; i += interval {
		if n-i < tail {
			anchors = append(anchors, n-1)
			break
		}
		anchors = append(anchors, i)
	}

	targets := make([]int32, n)
	for i := range targets {
		targets[i] = index.NoSkip
	}
	for k := 0; k+1 < len(anchors); k++ {
		targets[anchors[k]] = int32(anchors[k+1])
	}
	return targets
}

// Attach writes skip targets into every posting of pl in place.
func Attach(pl index.PostingList) {
	targets := Build(len(pl))
	for i := range pl {
		if targets == nil {
			pl[i].Skip = index.NoSkip
			continue
		}
		pl[i].Skip = targets[i]
	}
}
