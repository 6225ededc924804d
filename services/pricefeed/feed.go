package pricefeed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"hashmine/pkg/errutil"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Feed resolves USD prices. A failing live source degrades to the last known
// quote and then to the static fallback table; it never blocks callers on a
// missing price that has a fallback.
type Feed struct {
	fetcher  Fetcher
	mirror   Mirror
	clock    clock.Clock
	ttl      time.Duration
	fallback map[string]decimal.Decimal
	symbols  []string

	cache *quoteCache
	group singleflight.Group
}

type Options struct {
	Fetcher  Fetcher // nil disables live prices
	Mirror   Mirror  // optional
	Clock    clock.Clock
	TTL      time.Duration
	Fallback map[string]decimal.Decimal
	// Symbols refreshed by Refresh when called without arguments.
	Symbols []string
}

func New(opts Options) *Feed {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	fallback := make(map[string]decimal.Decimal, len(opts.Fallback))
	for sym, price := range opts.Fallback {
		fallback[strings.ToUpper(sym)] = price
	}

	symbols := make([]string, 0, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		symbols = append(symbols, strings.ToUpper(sym))
	}
	sort.Strings(symbols)

	return &Feed{
		fetcher:  opts.Fetcher,
		mirror:   opts.Mirror,
		clock:    opts.Clock,
		ttl:      opts.TTL,
		fallback: fallback,
		symbols:  symbols,
		cache:    newQuoteCache(),
	}
}

// Price returns the current USD quote for symbol.
func (f *Feed) Price(ctx context.Context, symbol string) (Quote, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	now := f.clock.Now().UTC()

	if usdPegged[sym] {
		return Quote{Symbol: sym, Price: decimal.NewFromInt(1), Source: SourcePeg, At: now}, nil
	}

	if q, ok := f.cache.Fresh(sym, now, f.ttl); ok {
		q.Source = SourceCache
		return q, nil
	}

	if f.fetcher != nil {
		v, err, _ := f.group.Do(sym, func() (any, error) {
			return f.fetchOne(ctx, sym)
		})
		if err == nil {
			return v.(Quote), nil
		}
		zap.L().Warn("live price unavailable, falling back", zap.String("symbol", sym), zap.Error(err))
	}

	return f.lastKnown(ctx, sym)
}

// Prices resolves every symbol once. Symbols without any price are left out
// and reported in the error.
func (f *Feed) Prices(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	var missing []string
	for _, sym := range symbols {
		q, err := f.Price(ctx, sym)
		if err != nil {
			missing = append(missing, sym)
			continue
		}
		out[q.Symbol] = q
	}
	if len(missing) > 0 {
		return out, errutil.NotFound(fmt.Sprintf("no price for %s", strings.Join(missing, ",")), nil)
	}
	return out, nil
}

// Convert expresses amount of from in units of to using one snapshot of
// both prices. The returned rate is to-units per from-unit.
func (f *Feed) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (converted, rate decimal.Decimal, err error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, decimal.NewFromInt(1), nil
	}

	quotes, err := f.Prices(ctx, []string{from, to})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	fromPrice, toPrice := quotes[from].Price, quotes[to].Price
	rate = fromPrice.DivRound(toPrice, 18)
	return amount.Mul(fromPrice).DivRound(toPrice, 18), rate, nil
}

// Refresh pulls live prices for symbols (or the configured set).
func (f *Feed) Refresh(ctx context.Context, symbols ...string) (int, error) {
	if f.fetcher == nil {
		return 0, nil
	}
	if len(symbols) == 0 {
		symbols = f.symbols
	}
	if len(symbols) == 0 {
		return 0, nil
	}

	prices, err := f.fetcher.Fetch(ctx, symbols)
	if err != nil {
		return 0, err
	}

	now := f.clock.Now().UTC()
	for sym, price := range prices {
		f.store(ctx, Quote{Symbol: sym, Price: price, Source: SourceLive, At: now})
	}
	return len(prices), nil
}

func (f *Feed) fetchOne(ctx context.Context, sym string) (Quote, error) {
	prices, err := f.fetcher.Fetch(ctx, []string{sym})
	if err != nil {
		return Quote{}, err
	}
	price, ok := prices[sym]
	if !ok {
		return Quote{}, fmt.Errorf("symbol %s not listed by source", sym)
	}

	q := Quote{Symbol: sym, Price: price, Source: SourceLive, At: f.clock.Now().UTC()}
	f.store(ctx, q)
	return q, nil
}

func (f *Feed) store(ctx context.Context, q Quote) {
	f.cache.Set(q)
	if f.mirror != nil {
		if err := f.mirror.Store(ctx, q); err != nil {
			zap.L().Warn("failed to mirror quote", zap.String("symbol", q.Symbol), zap.Error(err))
		}
	}
}

func (f *Feed) lastKnown(ctx context.Context, sym string) (Quote, error) {
	if q, ok := f.cache.Get(sym); ok {
		quoteFallbacks.WithLabelValues(sym, string(SourceCache)).Inc()
		q.Source = SourceCache
		return q, nil
	}

	if f.mirror != nil {
		q, err := f.mirror.Load(ctx, sym)
		if err != nil {
			zap.L().Warn("failed to load mirrored quote", zap.String("symbol", sym), zap.Error(err))
		}
		if q != nil {
			f.cache.Set(*q)
			quoteFallbacks.WithLabelValues(sym, string(SourceCache)).Inc()
			q.Source = SourceCache
			return *q, nil
		}
	}

	if price, ok := f.fallback[sym]; ok {
		quoteFallbacks.WithLabelValues(sym, string(SourceFallback)).Inc()
		return Quote{Symbol: sym, Price: price, Source: SourceFallback, At: f.clock.Now().UTC()}, nil
	}

	return Quote{}, errutil.NotFound(fmt.Sprintf("no price for %s", sym), nil)
}
