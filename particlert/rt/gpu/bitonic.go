package gpu

import (
	"github.com/gekko3d/collide/particlert/rt/core"
)

// SortSchedule lists the (j, k) stages of a bitonic network over n keys, n a power of
// two. One dispatch per entry; len is log2(n)*(log2(n)+1)/2.
func SortSchedule(n uint32) []core.SortKeyPair {
	var out []core.SortKeyPair
	for k := uint32(2); k <= n && k != 0; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			out = append(out, core.SortKeyPair{J: j, K: k})
		}
	}
	return out
}
