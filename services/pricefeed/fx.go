package pricefeed

import (
	"fmt"

	"hashmine/pkg/config"

	"github.com/facebookgo/clock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pricefeed",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In
	Config *config.Config
	Clock  clock.Clock   `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

func NewFromConfig(p Params) (*Feed, error) {
	cfg := p.Config.PriceFeed

	fallback := make(map[string]decimal.Decimal, len(cfg.Fallback))
	for sym, raw := range cfg.Fallback {
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid fallback price for %s: %q", sym, raw)
		}
		fallback[sym] = price
	}

	symbols := make([]string, 0, len(cfg.SymbolIDs))
	for sym := range cfg.SymbolIDs {
		symbols = append(symbols, sym)
	}

	opts := Options{
		Clock:    p.Clock,
		TTL:      cfg.TTL,
		Fallback: fallback,
		Symbols:  symbols,
	}
	if cfg.URL != "" {
		opts.Fetcher = NewCoinGecko(cfg.URL, cfg.Timeout, cfg.SymbolIDs)
	} else {
		zap.L().Info("price feed running on fallback prices only")
	}
	if p.Redis != nil {
		opts.Mirror = NewRedisMirror(p.Redis)
	}

	return New(opts), nil
}
