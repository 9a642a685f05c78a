package orders

import (
	"sort"
	"strings"
)

// NormalizeItems validates a cart, merges duplicate product lines and sorts
// the result by product id. Callers reserve in that order so concurrent
// multi-item reservations always lock product rows in the same sequence.
func NormalizeItems(items []ItemQty) ([]ItemQty, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Msg: "cart is empty"}
	}
	merged := make(map[string]int, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, &ValidationError{Field: "items", Msg: "product id required"}
		}
		if it.Qty <= 0 {
			return nil, &ValidationError{Field: "items", Msg: "invalid qty for product " + id}
		}
		merged[id] += it.Qty
	}
	out := make([]ItemQty, 0, len(merged))
	for id, q := range merged {
		out = append(out, ItemQty{ProductID: id, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func ProductIDs(items []ItemQty) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
