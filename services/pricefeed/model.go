package pricefeed

import (
	"time"

	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
	SourcePeg      Source = "peg"
)

// Quote is the USD price of one unit of Symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Source Source          `json:"source"`
	At     time.Time       `json:"at"`
}

// usdPegged symbols are always worth one USD.
var usdPegged = map[string]bool{
	"USD":  true,
	"USDT": true,
	"USDC": true,
}
