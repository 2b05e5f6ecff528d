// Package ledger reads payment state from the EVM payment contract over JSON-RPC.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of ethclient.Client the contract client needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type ContractClient struct {
	backend     Backend
	address     common.Address
	abi         abi.ABI
	callTimeout time.Duration
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg config.LedgerConfig) (*ContractClient, *ethclient.Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger rpc %s: %w", cfg.RPCURL, err)
	}

	client, err := NewContractClient(ec, cfg)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return client, ec, nil
}

func NewContractClient(backend Backend, cfg config.LedgerConfig) (*ContractClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	return &ContractClient{
		backend:     backend,
		address:     common.HexToAddress(cfg.ContractAddress),
		abi:         parsed,
		callTimeout: cfg.CallTimeout,
	}, nil
}

func (c *ContractClient) HasPaid(ctx context.Context, requestID string) (bool, error) {
	values, err := c.call(ctx, methodHasPaid, requestKey(requestID))
	if err != nil {
		return false, err
	}

	paid, ok := values[0].(bool)
	if !ok {
		return false, &LedgerError{Op: methodHasPaid, Err: fmt.Errorf("unexpected return type %T", values[0])}
	}
	return paid, nil
}

func (c *ContractClient) GetPayment(ctx context.Context, requestID string) (*application.LedgerPayment, error) {
	values, err := c.call(ctx, methodGetPayment, requestKey(requestID))
	if err != nil {
		return nil, err
	}

	tuple := abi.ConvertType(values[0], new(PaymentTuple)).(*PaymentTuple)
	if !tuple.Exists {
		return &application.LedgerPayment{Exists: false}, nil
	}

	amount, err := domain.NewAmount(tuple.Amount)
	if err != nil {
		return nil, &LedgerError{Op: methodGetPayment, Err: err}
	}

	return &application.LedgerPayment{
		Payer:     tuple.Payer.Hex(),
		Amount:    amount,
		Timestamp: time.Unix(tuple.Timestamp.Int64(), 0).UTC(),
		Exists:    true,
	}, nil
}

func (c *ContractClient) Price(ctx context.Context) (domain.Amount, error) {
	values, err := c.call(ctx, methodPrice)
	if err != nil {
		return domain.Amount{}, err
	}

	wei, ok := values[0].(*big.Int)
	if !ok {
		return domain.Amount{}, &LedgerError{Op: methodPrice, Err: fmt.Errorf("unexpected return type %T", values[0])}
	}
	return domain.NewAmount(wei)
}

func (c *ContractClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := c.backend.BlockNumber(ctx)
	observe("blockNumber", start, err)
	if err != nil {
		return 0, classify("blockNumber", err)
	}
	return n, nil
}

func (c *ContractClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, &LedgerError{Op: method, Err: fmt.Errorf("pack arguments: %w", err)}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	observe(method, start, err)
	if err != nil {
		return nil, classify(method, err)
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, &LedgerError{Op: method, Err: fmt.Errorf("unpack result: %w", err)}
	}
	if len(values) == 0 {
		return nil, &LedgerError{Op: method, Err: fmt.Errorf("empty result")}
	}
	return values, nil
}

func (c *ContractClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func observe(method string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.LedgerCallDuration.WithLabelValues(method, result).Observe(time.Since(start).Seconds())
}

// requestKey maps a 0x-prefixed request ID onto the contract's bytes32 key.
func requestKey(requestID string) [32]byte {
	return common.HexToHash(requestID)
}

var _ application.Ledger = (*ContractClient)(nil)
