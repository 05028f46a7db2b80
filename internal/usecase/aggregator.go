package usecase

import (
	"math"
	"strings"

	"github.com/scontrini/backend/internal/domain"
)

// AggregateLineItems merges receipt lines sharing the same trimmed raw name
// and store into one item so that duplicates never race on the same mapping.
// Merged items carry the trimmed names, which is what Resolve keys on.
// Quantities and totals are summed, the unit price becomes total/quantity and
// items keep the order of their first occurrence.
func AggregateLineItems(items []domain.LineItem) []domain.AggregatedItem {
	type key struct{ raw, store string }

	index := make(map[key]int, len(items))
	out := make([]domain.AggregatedItem, 0, len(items))
	priced := make([]bool, 0, len(items))

	for i, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total, hasTotal := lineTotal(item, qty)

		item.RawName = strings.TrimSpace(item.RawName)
		item.StoreName = strings.TrimSpace(item.StoreName)
		k := key{item.RawName, item.StoreName}
		pos, seen := index[k]
		if !seen {
			agg := domain.AggregatedItem{
				LineItem:        item,
				AggregatedFrom:  1,
				OriginalIndexes: []int{i},
			}
			agg.Quantity = qty
			agg.TotalPrice = nil
			if hasTotal {
				agg.TotalPrice = &total
			}
			index[k] = len(out)
			out = append(out, agg)
			priced = append(priced, hasTotal)
			continue
		}

		agg := &out[pos]
		agg.AggregatedFrom++
		agg.OriginalIndexes = append(agg.OriginalIndexes, i)
		agg.Quantity += qty
		if priced[pos] && hasTotal {
			sum := roundCents(*agg.TotalPrice + total)
			agg.TotalPrice = &sum
		} else {
			priced[pos] = false
			agg.TotalPrice = nil
		}
	}

	for i := range out {
		agg := &out[i]
		if agg.TotalPrice == nil {
			if agg.AggregatedFrom > 1 {
				agg.UnitPrice = nil
			}
			continue
		}
		unit := roundCents(*agg.TotalPrice / agg.Quantity)
		agg.UnitPrice = &unit
	}
	return out
}

// AggregationPreserved reports whether aggregation kept the overall quantity
// and priced total of the original lines
func AggregationPreserved(items []domain.LineItem, aggregated []domain.AggregatedItem) bool {
	var qtyIn, qtyOut, totalIn, totalOut float64
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		qtyIn += qty
		if total, ok := lineTotal(item, qty); ok {
			totalIn += total
		}
	}
	for _, agg := range aggregated {
		qtyOut += agg.Quantity
		if agg.TotalPrice != nil {
			totalOut += *agg.TotalPrice
		}
	}
	if math.Abs(qtyIn-qtyOut) >= 0.001 {
		return false
	}
	// unpriced groups drop their partial totals, so only an excess is wrong
	return totalOut <= totalIn+0.001
}

func lineTotal(item domain.LineItem, qty float64) (float64, bool) {
	if item.TotalPrice != nil {
		return *item.TotalPrice, true
	}
	if item.UnitPrice != nil {
		return roundCents(*item.UnitPrice * qty), true
	}
	return 0, false
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
