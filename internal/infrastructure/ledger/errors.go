package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
)

type LedgerError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) IsRetryable() bool {
	return e.Retryable
}

func IsLedgerError(err error) (*LedgerError, bool) {
	var ledgerErr *LedgerError
	ok := errors.As(err, &ledgerErr)
	return ledgerErr, ok
}

// classify wraps an RPC failure. Transport faults, timeouts and 5xx/429
// responses are retryable; JSON-RPC errors (reverts, bad params) and caller
// cancellation are not.
func classify(op string, err error) *LedgerError {
	ledgerErr := &LedgerError{Op: op, Err: err, Retryable: true}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		ledgerErr.Retryable = httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
		return ledgerErr
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		ledgerErr.Retryable = false
		return ledgerErr
	}

	if errors.Is(err, context.Canceled) {
		ledgerErr.Retryable = false
	}

	return ledgerErr
}
