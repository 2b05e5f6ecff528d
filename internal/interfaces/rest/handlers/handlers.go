package handlers

import (
	"log/slog"
	"regexp"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest/middleware"
	"github.com/go-playground/validator"
)

const PaymentHeader = "X-PAYMENT"

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Handlers serves the paid resource and the health check. A nil limiter
// disables challenge rate limiting.
type Handlers struct {
	registry   *services.RequestRegistry
	challenges *services.ChallengeResponder
	verifier   *services.PaymentVerifier
	issuer     *services.ResourceIssuer
	ledger     application.Ledger
	ledgerCfg  config.LedgerConfig
	limiter    *middleware.RateLimiter
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewHandlers(
	registry *services.RequestRegistry,
	challenges *services.ChallengeResponder,
	verifier *services.PaymentVerifier,
	issuer *services.ResourceIssuer,
	ledger application.Ledger,
	ledgerCfg config.LedgerConfig,
	limiter *middleware.RateLimiter,
	logger *slog.Logger,
) *Handlers {
	validate := validator.New()
	_ = validate.RegisterValidation("txhash", func(fl validator.FieldLevel) bool {
		return txHashPattern.MatchString(fl.Field().String())
	})

	return &Handlers{
		registry:   registry,
		challenges: challenges,
		verifier:   verifier,
		issuer:     issuer,
		ledger:     ledger,
		ledgerCfg:  ledgerCfg,
		limiter:    limiter,
		validate:   validate,
		logger:     logger,
	}
}
