package ingest

import (
	"sort"

	"github.com/warp-contracts/tempo-watchtower/src/model"
	"github.com/warp-contracts/tempo-watchtower/src/store"
)

// validateNonceValidBeforeOrder checks that within a group, members'
// valid_before values are non-decreasing in nonce order. A later nonce
// expiring before an earlier one could never execute once its
// predecessors consume the stream, so it is rejected at ingest.
func validateNonceValidBeforeOrder(windows []store.NonceWindow) error {
	ordered := make([]store.NonceWindow, 0, len(windows))
	for _, w := range windows {
		if w.ValidBefore != nil {
			ordered = append(ordered, w)
		}
	}
	if len(ordered) <= 1 {
		return nil
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Nonce < ordered[j].Nonce })

	prev := *ordered[0].ValidBefore
	for _, w := range ordered[1:] {
		if *w.ValidBefore < prev {
			return model.ErrGroupOrder
		}
		prev = *w.ValidBefore
	}
	return nil
}

func sortedUnique(values []uint64) []uint64 {
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
