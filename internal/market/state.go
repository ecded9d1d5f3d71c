package market

import (
	"sort"

	"rtg-maker-bot/internal/exchange"
)

// Book is the stored depth for one instrument. Bids are strictly descending,
// asks strictly ascending, best bid below best ask; ApplyBook enforces this
// regardless of input ordering.
type Book struct {
	Instrument exchange.Instrument
	Sequence   uint64
	Bids       []exchange.PriceLevel
	Asks       []exchange.PriceLevel
	TimeMS     int64
}

// State holds current depth and bounded trade history per instrument. It is
// touched only from the single-writer event loop, so it carries no lock.
type State struct {
	books       map[exchange.Instrument]Book
	trades      map[exchange.Instrument][]exchange.TradeTick
	tradeWindow int
}

func NewState(tradeWindow int) *State {
	if tradeWindow <= 0 {
		tradeWindow = 64
	}
	return &State{
		books:       make(map[exchange.Instrument]Book),
		trades:      make(map[exchange.Instrument][]exchange.TradeTick),
		tradeWindow: tradeWindow,
	}
}

// ApplyBook replaces the stored book wholesale. Malformed input (unsorted
// levels, zero prices, crossed top of book) is normalized, never rejected:
// the feed is exchange-formatted, but ordering is not trusted blindly.
func (s *State) ApplyBook(update exchange.BookUpdate) {
	bids := normalizeSide(update.Bids, true)
	asks := normalizeSide(update.Asks, false)
	bids, asks = uncross(bids, asks)
	s.books[update.Instrument] = Book{
		Instrument: update.Instrument,
		Sequence:   update.Sequence,
		Bids:       bids,
		Asks:       asks,
		TimeMS:     update.TimeMS,
	}
}

// ApplyTrade appends to the bounded history, evicting the oldest tick when
// the window is full.
func (s *State) ApplyTrade(tick exchange.TradeTick) {
	history := append(s.trades[tick.Instrument], tick)
	if len(history) > s.tradeWindow {
		history = history[len(history)-s.tradeWindow:]
	}
	s.trades[tick.Instrument] = history
}

func (s *State) Book(instrument exchange.Instrument) (Book, bool) {
	book, ok := s.books[instrument]
	return book, ok
}

func (s *State) BestBid(instrument exchange.Instrument) (exchange.PriceLevel, bool) {
	book, ok := s.books[instrument]
	if !ok || len(book.Bids) == 0 {
		return exchange.PriceLevel{}, false
	}
	return book.Bids[0], true
}

func (s *State) BestAsk(instrument exchange.Instrument) (exchange.PriceLevel, bool) {
	book, ok := s.books[instrument]
	if !ok || len(book.Asks) == 0 {
		return exchange.PriceLevel{}, false
	}
	return book.Asks[0], true
}

// Mid returns the midpoint of the top of book in price units (cents).
func (s *State) Mid(instrument exchange.Instrument) (float64, bool) {
	bid, okBid := s.BestBid(instrument)
	ask, okAsk := s.BestAsk(instrument)
	if !okBid || !okAsk {
		return 0, false
	}
	return float64(bid.Price+ask.Price) / 2, true
}

// Imbalance is (bidVolume-askVolume)/(bidVolume+askVolume) over the top
// depth levels, in [-1, 1]. Zero when either side is empty.
func (s *State) Imbalance(instrument exchange.Instrument, depth int) float64 {
	book, ok := s.books[instrument]
	if !ok || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0
	}
	var bidVol, askVol int64
	for i, lvl := range book.Bids {
		if depth > 0 && i >= depth {
			break
		}
		bidVol += lvl.Volume
	}
	for i, lvl := range book.Asks {
		if depth > 0 && i >= depth {
			break
		}
		askVol += lvl.Volume
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return float64(bidVol-askVol) / float64(total)
}

// Trades returns a copy of the retained history, oldest first.
func (s *State) Trades(instrument exchange.Instrument) []exchange.TradeTick {
	history := s.trades[instrument]
	out := make([]exchange.TradeTick, len(history))
	copy(out, history)
	return out
}

func normalizeSide(levels []exchange.PriceLevel, descending bool) []exchange.PriceLevel {
	out := make([]exchange.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Volume <= 0 {
			continue
		}
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	// Merge duplicate prices so levels stay strictly monotonic.
	merged := out[:0]
	for _, lvl := range out {
		if n := len(merged); n > 0 && merged[n-1].Price == lvl.Price {
			merged[n-1].Volume += lvl.Volume
			continue
		}
		merged = append(merged, lvl)
	}
	return merged
}

// uncross drops top levels until best bid < best ask, removing the smaller
// volume first on the assumption it is the staler remnant.
func uncross(bids, asks []exchange.PriceLevel) ([]exchange.PriceLevel, []exchange.PriceLevel) {
	for len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
		if bids[0].Volume < asks[0].Volume {
			bids = bids[1:]
		} else {
			asks = asks[1:]
		}
	}
	return bids, asks
}
