package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Fetcher loads live USD prices for symbols. Unknown symbols are omitted
// from the result.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// CoinGecko reads the simple/price endpoint of a CoinGecko compatible API.
type CoinGecko struct {
	client *resty.Client
	ids    map[string]string
}

func NewCoinGecko(baseURL string, timeout time.Duration, ids map[string]string) *CoinGecko {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetHeader("Accept", "application/json")

	return &CoinGecko{client: client, ids: ids}
}

func (c *CoinGecko) Fetch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	bySymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := c.ids[strings.ToUpper(sym)]
		if !ok {
			continue
		}
		bySymbol[id] = strings.ToUpper(sym)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	var body map[string]map[string]decimal.Decimal
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetQueryParam("vs_currencies", "usd").
		SetResult(&body).
		Get("/simple/price")
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("price request: unexpected status %d", resp.StatusCode())
	}

	out := make(map[string]decimal.Decimal, len(body))
	for id, prices := range body {
		usd, ok := prices["usd"]
		if !ok || !usd.IsPositive() {
			continue
		}
		if sym, ok := bySymbol[id]; ok {
			out[sym] = usd
		}
	}
	return out, nil
}
