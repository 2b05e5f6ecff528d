// Package payload produces the protected content sold behind the 402 gate.
package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

type Quote struct {
	Price     string `json:"price"`
	Change24h string `json:"change24h"`
	Volume24h string `json:"volume24h"`
}

type MarketOverview struct {
	TotalMarketCap   string `json:"totalMarketCap"`
	BitcoinDominance string `json:"bitcoinDominance"`
	DefiTVL          string `json:"defiTVL"`
}

type MarketData struct {
	CryptoPrices map[string]Quote `json:"cryptoPrices"`
	MarketData   MarketOverview   `json:"marketData"`
	Timestamp    time.Time        `json:"timestamp"`
	DataProvider string           `json:"dataProvider"`
	RefreshRate  string           `json:"refreshRate"`
}

// MarketDataProvider fabricates a crypto market snapshot. It stands in for a
// real data feed.
type MarketDataProvider struct {
	now func() time.Time
	rnd func() float64
}

func NewMarketDataProvider() *MarketDataProvider {
	return &MarketDataProvider{
		now: time.Now,
		rnd: rand.Float64,
	}
}

func (p *MarketDataProvider) Generate(ctx context.Context, req *domain.PaymentRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := MarketData{
		CryptoPrices: map[string]Quote{
			"BTC": {
				Price:     fmt.Sprintf("%.2f", p.between(40000, 50000)),
				Change24h: fmt.Sprintf("%.2f%%", p.between(-5, 5)),
				Volume24h: fmt.Sprintf("$%.2fB", p.between(20, 30)),
			},
			"ETH": {
				Price:     fmt.Sprintf("%.2f", p.between(2000, 2500)),
				Change24h: fmt.Sprintf("%.2f%%", p.between(-5, 5)),
				Volume24h: fmt.Sprintf("$%.2fB", p.between(8, 13)),
			},
			"XPL": {
				Price:     fmt.Sprintf("%.4f", p.between(0.5, 1)),
				Change24h: fmt.Sprintf("%.2f%%", p.between(-10, 10)),
				Volume24h: fmt.Sprintf("$%.2fM", p.between(1, 3)),
			},
		},
		MarketData: MarketOverview{
			TotalMarketCap:   fmt.Sprintf("$%.2fB", p.between(1500, 2000)),
			BitcoinDominance: fmt.Sprintf("%.2f%%", p.between(45, 55)),
			DefiTVL:          fmt.Sprintf("$%.2fB", p.between(80, 130)),
		},
		Timestamp:    p.now().UTC(),
		DataProvider: "Premium Crypto Data API",
		RefreshRate:  "1 minute",
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal market data for %s: %w", req.ID, err)
	}
	return raw, nil
}

func (p *MarketDataProvider) between(lo, hi float64) float64 {
	return lo + p.rnd()*(hi-lo)
}

var _ application.ResourceProvider = (*MarketDataProvider)(nil)
