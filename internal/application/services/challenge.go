package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
)

type Instructions struct {
	Step1 string
	Step2 string
	Step3 string
}

// Challenge is everything a client needs to pay for RequestID.
type Challenge struct {
	RequestID       string
	Amount          domain.Amount
	Currency        string
	Network         string
	ChainID         int64
	ContractAddress string
	RPCURL          string
	ExplorerURL     string
	Instructions    Instructions
	Message         string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	// FallbackPrice is set when Amount came from configuration instead of the ledger.
	FallbackPrice bool
}

type ChallengeResponder struct {
	registry     *RequestRegistry
	ledger       application.Ledger
	cfg          config.LedgerConfig
	resourceName string
	fallback     domain.Amount
	logger       *slog.Logger
}

func NewChallengeResponder(
	registry *RequestRegistry,
	ledger application.Ledger,
	cfg config.LedgerConfig,
	resourceName string,
	logger *slog.Logger,
) (*ChallengeResponder, error) {
	fallback, err := domain.ParseAmount(cfg.FallbackPrice)
	if err != nil {
		return nil, fmt.Errorf("fallback price: %w", err)
	}

	return &ChallengeResponder{
		registry:     registry,
		ledger:       ledger,
		cfg:          cfg,
		resourceName: resourceName,
		fallback:     fallback,
		logger:       logger,
	}, nil
}

// Challenge mints a new request and quotes the ledger's current price for it.
// Only a registry failure makes it fail.
func (c *ChallengeResponder) Challenge(ctx context.Context) (*Challenge, error) {
	req, err := c.registry.Create(ctx)
	if err != nil {
		c.logger.Error("failed to create payment request", "error", err)
		return nil, application.NewInternalError(err)
	}

	price, fallback := c.currentPrice(ctx)
	metrics.ChallengesIssued.Inc()

	quote := fmt.Sprintf("%s %s", price.String(), c.cfg.Currency)
	challenge := &Challenge{
		RequestID:       req.ID,
		Amount:          price,
		Currency:        c.cfg.Currency,
		Network:         c.cfg.Network,
		ChainID:         c.cfg.ChainID,
		ContractAddress: c.cfg.ContractAddress,
		RPCURL:          c.cfg.RPCURL,
		ExplorerURL:     c.cfg.ExplorerURL,
		Instructions: Instructions{
			Step1: "Call contract.pay(requestId) with value >= " + quote,
			Step2: "Include transaction hash in X-PAYMENT header",
			Step3: "Retry this request with X-PAYMENT header",
		},
		Message:       fmt.Sprintf("Pay %s to access %s", quote, c.resourceName),
		IssuedAt:      req.CreatedAt,
		FallbackPrice: fallback,
	}
	if ttl := c.registry.TTL(); ttl > 0 {
		challenge.ExpiresAt = req.CreatedAt.Add(ttl)
	}

	c.logger.Info("payment challenge issued",
		"request_id", req.ID,
		"amount", price.String(),
		"fallback_price", fallback,
	)
	return challenge, nil
}

func (c *ChallengeResponder) currentPrice(ctx context.Context) (domain.Amount, bool) {
	ctx, cancel := withLedgerTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	price, err := c.ledger.Price(ctx)
	if err != nil {
		metrics.PriceFallbacks.Inc()
		c.logger.Warn("ledger price unavailable, quoting fallback price",
			"fallback_price", c.fallback.String(),
			"error", err,
		)
		return c.fallback, true
	}
	return price, false
}
