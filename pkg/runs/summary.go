package runs

import "sort"

// TierRate is the mean coins per hour of farming runs at one tier.
type TierRate struct {
	Tier         float64 `json:"tier"`
	Runs         int     `json:"runs"`
	CoinsPerHour float64 `json:"coinsPerHour"`
}

// Best points at the run holding the highest value of one rate. Index refers
// to the slice passed to Summarize.
type Best struct {
	Index  int     `json:"-"`
	Rate   float64 `json:"rate"`
	Header Header  `json:"run"`
}

// Summary is the dashboard view over a user's farming runs.
type Summary struct {
	Runs             int        `json:"runs"`
	BestCoins        *Best      `json:"bestCoinsPerHour"`
	BestCells        *Best      `json:"bestCellsPerHour"`
	BestRerollShards *Best      `json:"bestRerollShardsPerHour"`
	Tiers            []float64  `json:"tiers"`
	ByTier           []TierRate `json:"byTier"`
}

// Summarize aggregates farming headers in recorded order: the best run per
// rate (earliest wins ties, missing rates never win), the distinct tiers
// played ascending, and mean coins per hour per tier. Other run types are ignored.
func Summarize(headers []Header) Summary {
	order := make([]int, 0, len(headers))
	for i, h := range headers {
		if h.RunType == RunTypeFarming {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return headers[order[a]].Recorded.Before(headers[order[b]].Recorded)
	})

	type acc struct {
		sum float64
		n   int
	}
	s := Summary{Runs: len(order)}
	byTier := map[float64]*acc{}
	for _, i := range order {
		h := headers[i]
		s.BestCoins = better(s.BestCoins, i, h, h.CoinsPerHour)
		s.BestCells = better(s.BestCells, i, h, h.CellsPerHour)
		s.BestRerollShards = better(s.BestRerollShards, i, h, h.RerollShardsPerHour)

		a, ok := byTier[h.Tier]
		if !ok {
			a = &acc{}
			byTier[h.Tier] = a
			s.Tiers = append(s.Tiers, h.Tier)
		}
		if h.CoinsPerHour != nil {
			a.sum += *h.CoinsPerHour
			a.n++
		}
	}
	sort.Float64s(s.Tiers)
	for _, t := range s.Tiers {
		a := byTier[t]
		if a.n == 0 {
			continue
		}
		s.ByTier = append(s.ByTier, TierRate{Tier: t, Runs: a.n, CoinsPerHour: a.sum / float64(a.n)})
	}
	return s
}

func better(cur *Best, i int, h Header, rate *float64) *Best {
	if rate == nil {
		return cur
	}
	if cur == nil || *rate > cur.Rate {
		return &Best{Index: i, Rate: *rate, Header: h}
	}
	return cur
}
