package activity

import (
	"sort"

	"github.com/0xmhha/wallet-activity/pkg/types"
)

// Merge combines freshly fetched items with previously cached ones.
// The result is sorted by descending block number, ties keep input order
// (fresh before cached), and only the first item per (hash, kind) is kept.
func Merge(fresh, cached []types.ActivityItem) []types.ActivityItem {
	combined := make([]types.ActivityItem, 0, len(fresh)+len(cached))
	combined = append(combined, fresh...)
	combined = append(combined, cached...)

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].BlockNumber > combined[j].BlockNumber
	})

	seen := make(map[types.ItemKey]struct{}, len(combined))
	out := combined[:0]
	for _, item := range combined {
		key := item.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
