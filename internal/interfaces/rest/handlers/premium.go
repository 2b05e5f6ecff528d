package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest/middleware"
	"github.com/go-playground/validator"
)

// PaymentProof is the JSON document carried in the X-PAYMENT header.
type PaymentProof struct {
	RequestID string `json:"requestId" validate:"required"`
	TxHash    string `json:"txHash" validate:"omitempty,txhash"`
}

// GetResource implements the 402 exchange for the protected resource.
func (h *Handlers) GetResource(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get(PaymentHeader)
	if header == "" {
		h.writeChallenge(w, r, "Payment Required", "")
		return
	}

	var proof PaymentProof
	if err := json.Unmarshal([]byte(header), &proof); err != nil {
		h.badRequest(w, "Invalid payment header format")
		return
	}

	if err := h.validate.Struct(proof); err != nil {
		h.badRequest(w, validationMessage(err))
		return
	}

	if err := domain.ValidateRequestID(proof.RequestID); err != nil {
		h.badRequest(w, "Invalid requestId")
		return
	}

	ctx := r.Context()
	outcome, err := h.verifier.Verify(ctx, services.VerifyCommand{
		RequestID: proof.RequestID,
		TxHash:    proof.TxHash,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestNotFound):
			h.writeChallenge(w, r, "Unknown request", proof.RequestID)
		case errors.Is(err, domain.ErrRequestExpired):
			h.writeChallenge(w, r, "Request expired", proof.RequestID)
		default:
			h.writeServerError(w, r, err)
		}
		return
	}

	switch outcome.Status {
	case services.VerificationNotPaid:
		rest.WriteJSON(w, http.StatusPaymentRequired, rest.NotVerifiedResponse{
			Error:     "Payment not verified",
			Message:   "No payment found for this request ID. Please ensure transaction is confirmed.",
			RequestID: proof.RequestID,
		}, h.logger)
		return

	case services.VerificationInsufficientPayment:
		rest.WriteJSON(w, http.StatusPaymentRequired, rest.InsufficientPaymentResponse{
			Error:     "Insufficient payment",
			RequestID: proof.RequestID,
			Paid:      outcome.Paid.String(),
			Required:  outcome.Price.String(),
			Shortfall: outcome.Shortfall.String(),
			Currency:  h.ledgerCfg.Currency,
		}, h.logger)
		return
	}

	resource, err := h.issuer.Issue(ctx, proof.RequestID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotVerified):
			h.writeChallenge(w, r, "Payment not verified", proof.RequestID)
		case errors.Is(err, domain.ErrRequestNotFound):
			h.writeChallenge(w, r, "Unknown request", proof.RequestID)
		default:
			h.writeServerError(w, r, err)
		}
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.ResourceResponse{
		Success: true,
		Message: "Payment verified successfully",
		Data:    resource.Payload,
		Payment: rest.PaymentProvenance{
			RequestID: resource.RequestID,
			PaidBy:    resource.Payer,
			Amount:    resource.Amount.String() + " " + h.ledgerCfg.Currency,
			Timestamp: resource.PaidAt.UTC().Format(time.RFC3339),
			TxHash:    resource.SettlementRef,
		},
	}, h.logger)
}

// writeChallenge mints a fresh request and answers 402. previousID is echoed
// back when the client presented an unknown or expired ID. Every mint is
// charged to the client's rate limit bucket.
func (h *Handlers) writeChallenge(w http.ResponseWriter, r *http.Request, reason, previousID string) {
	if !h.limiter.AllowChallenge(w, r) {
		return
	}

	challenge, err := h.challenges.Challenge(r.Context())
	if err != nil {
		h.writeServerError(w, r, err)
		return
	}

	body := rest.ChallengeResponse{
		Error:             reason,
		RequestID:         challenge.RequestID,
		PreviousRequestID: previousID,
		Payment: rest.PaymentTerms{
			Amount:          challenge.Amount.String(),
			Currency:        challenge.Currency,
			Network:         challenge.Network,
			ChainID:         challenge.ChainID,
			ContractAddress: challenge.ContractAddress,
			RPCURL:          challenge.RPCURL,
			ExplorerURL:     challenge.ExplorerURL,
		},
		Instructions: rest.Instructions{
			Step1: challenge.Instructions.Step1,
			Step2: challenge.Instructions.Step2,
			Step3: challenge.Instructions.Step3,
		},
		Message: challenge.Message,
	}
	if !challenge.ExpiresAt.IsZero() {
		body.ExpiresAt = challenge.ExpiresAt.Format(time.RFC3339)
	}

	rest.WriteJSON(w, http.StatusPaymentRequired, body, h.logger)
}

func (h *Handlers) writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsErrorCode(err, domain.ErrCodeInvalidState) {
		h.logger.Error("invalid state transition",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	} else {
		h.logger.Warn("request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	rest.WriteError(w, err, h.logger)
}

func (h *Handlers) badRequest(w http.ResponseWriter, message string) {
	rest.WriteJSON(w, http.StatusBadRequest, rest.ErrorResponse{Error: message}, h.logger)
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Field() {
		case "RequestID":
			return "Missing requestId"
		case "TxHash":
			return "Invalid txHash"
		}
	}
	return "Invalid payment header format"
}
