package orderbook

// Level is one (price, volume) row of a depth query.
type Level struct {
	Price  float64
	Volume float64
}

// BookSide holds every price level of one side. Iteration order defines
// depth ranking: bids walk from the highest price down, asks from the
// lowest price up, so the first level visited is always the best.
type BookSide struct {
	side Side
	tree *RBTree
}

func NewBookSide(side Side) *BookSide {
	return &BookSide{side: side, tree: NewRBTree()}
}

func (s *BookSide) Side() Side { return s.side }

func (s *BookSide) Len() int { return s.tree.Size() }

func (s *BookSide) Find(price float64) *PriceLevel { return s.tree.FindLevel(price) }

func (s *BookSide) Upsert(price float64) *PriceLevel { return s.tree.UpsertLevel(price) }

func (s *BookSide) Delete(price float64) bool { return s.tree.DeleteLevel(price) }

// Best returns the top-of-book level: highest bid or lowest ask.
func (s *BookSide) Best() *PriceLevel {
	if s.side == Bid {
		return s.tree.MaxLevel()
	}
	return s.tree.MinLevel()
}

// Walk visits levels nearest-to-best first until fn returns false.
func (s *BookSide) Walk(fn func(*PriceLevel) bool) {
	if s.side == Bid {
		s.tree.ForEachDescending(fn)
	} else {
		s.tree.ForEachAscending(fn)
	}
}

// Depth returns up to n (price, volume) rows, nearest-to-best first.
func (s *BookSide) Depth(n int) []Level {
	out := make([]Level, 0, n)
	s.Walk(func(lvl *PriceLevel) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, Level{Price: lvl.Price, Volume: lvl.TotalVolume})
		return true
	})
	return out
}

// TotalVolume sums resting volume over the top depth levels.
func (s *BookSide) TotalVolume(depth int) float64 {
	total := 0.0
	count := 0
	s.Walk(func(lvl *PriceLevel) bool {
		if count >= depth {
			return false
		}
		total += lvl.TotalVolume
		count++
		return true
	})
	return total
}

func (s *BookSide) Clear() { s.tree.Clear() }
