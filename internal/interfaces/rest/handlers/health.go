package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
)

// Health reports ledger liveness: the contract price and current block.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.ledgerCfg.CallTimeout)
	defer cancel()

	price, err := h.ledger.Price(ctx)
	if err != nil {
		h.unhealthy(w, err)
		return
	}

	block, err := h.ledger.BlockNumber(ctx)
	if err != nil {
		h.unhealthy(w, err)
		return
	}

	body := rest.HealthResponse{
		Status:       "healthy",
		Contract:     h.ledgerCfg.ContractAddress,
		Network:      h.ledgerCfg.NetworkName,
		ChainID:      h.ledgerCfg.ChainID,
		Price:        price.String() + " " + h.ledgerCfg.Currency,
		CurrentBlock: block,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	if counts, err := h.registry.CountByStatus(r.Context()); err == nil {
		body.Requests = make(map[string]int, len(domain.Statuses()))
		for _, status := range domain.Statuses() {
			body.Requests[string(status)] = counts[status]
		}
		metrics.SetRequestCounts(counts)
	} else {
		h.logger.Warn("failed to count requests", "error", err)
	}

	rest.WriteJSON(w, http.StatusOK, body, h.logger)
}

func (h *Handlers) unhealthy(w http.ResponseWriter, err error) {
	h.logger.Error("health check failed", "error", err)
	rest.WriteJSON(w, http.StatusInternalServerError, rest.UnhealthyResponse{
		Status: "unhealthy",
		Error:  err.Error(),
	}, h.logger)
}
