package bar

import (
	"sort"
	"time"

	"abquant/internal/model"
)

// Merge aligns per-symbol bar series on their union of timestamps. A symbol
// missing at a timestamp after its first bar is forward-filled with a flat bar
// at the previous close; before its first bar it is left out.
func Merge(series map[string][]model.Bar) []map[string]model.Bar {
	bySymbol := make(map[string]map[int64]model.Bar, len(series))
	stamps := make(map[int64]time.Time)
	for symbol, bars := range series {
		m := make(map[int64]model.Bar, len(bars))
		for _, b := range bars {
			key := b.Datetime.UnixNano()
			m[key] = b
			stamps[key] = b.Datetime
		}
		bySymbol[symbol] = m
	}

	keys := make([]int64, 0, len(stamps))
	for k := range stamps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	last := make(map[string]model.Bar, len(series))
	out := make([]map[string]model.Bar, 0, len(keys))
	for _, k := range keys {
		group := make(map[string]model.Bar, len(series))
		for symbol, m := range bySymbol {
			if b, ok := m[k]; ok {
				group[symbol] = b
				last[symbol] = b
				continue
			}
			if prev, ok := last[symbol]; ok {
				filled := model.FlatBar(prev, stamps[k])
				group[symbol] = filled
				last[symbol] = filled
			}
		}
		out = append(out, group)
	}
	return out
}
