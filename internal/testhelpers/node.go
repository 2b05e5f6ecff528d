package testhelpers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// FakeNode is a JSON-RPC endpoint that emulates the payment contract: it
// answers eth_call for hasPaid, getPayment and price, and eth_blockNumber.
type FakeNode struct {
	t   *testing.T
	abi abi.ABI
	srv *httptest.Server

	mu       sync.Mutex
	price    *big.Int
	payments map[common.Hash]ledger.PaymentTuple
	block    uint64
	status   int
	revert   bool

	ethCalls atomic.Int32
}

// NewFakeNode starts a node quoting price; it is shut down with the test.
func NewFakeNode(t *testing.T, price string) *FakeNode {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(ledger.ContractABI))
	require.NoError(t, err)

	n := &FakeNode{
		t:        t,
		abi:      parsed,
		price:    domain.MustParseAmount(price).Wei(),
		payments: make(map[common.Hash]ledger.PaymentTuple),
		block:    1,
	}
	n.srv = httptest.NewServer(n)
	t.Cleanup(n.srv.Close)
	return n
}

func (n *FakeNode) URL() string {
	return n.srv.URL
}

// Pay mines a pay(requestId) transaction from payer.
func (n *FakeNode) Pay(requestID, payer, amount string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payments[common.HexToHash(requestID)] = ledger.PaymentTuple{
		Payer:     common.HexToAddress(payer),
		Amount:    domain.MustParseAmount(amount).Wei(),
		Timestamp: big.NewInt(time.Now().Unix()),
		Exists:    true,
	}
	n.block++
}

func (n *FakeNode) SetPrice(price string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.price = domain.MustParseAmount(price).Wei()
}

// SetStatus makes the node answer every request with an HTTP status and no body. Zero restores it.
func (n *FakeNode) SetStatus(status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = status
}

// SetRevert makes every eth_call revert.
func (n *FakeNode) SetRevert(revert bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revert = revert
}

func (n *FakeNode) Block() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.block
}

func (n *FakeNode) EthCalls() int {
	return int(n.ethCalls.Load())
}

func (n *FakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.status != 0 {
		w.WriteHeader(n.status)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		n.t.Errorf("fake node: decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "eth_blockNumber":
		resp["result"] = hexutil.EncodeUint64(n.block)
	case "eth_call":
		n.ethCalls.Add(1)
		if n.revert {
			resp["error"] = map[string]any{"code": 3, "message": "execution reverted"}
			break
		}
		result, err := n.answerCall(req.Params[0])
		if err != nil {
			resp["error"] = map[string]any{"code": -32602, "message": err.Error()}
			break
		}
		resp["result"] = result
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		n.t.Errorf("fake node: encode response: %v", err)
	}
}

func (n *FakeNode) answerCall(raw json.RawMessage) (string, error) {
	var call map[string]any
	if err := json.Unmarshal(raw, &call); err != nil {
		return "", err
	}

	data, _ := call["input"].(string)
	if data == "" {
		data, _ = call["data"].(string)
	}
	input, err := hexutil.Decode(data)
	if err != nil {
		return "", err
	}

	method, err := n.abi.MethodById(input[:4])
	if err != nil {
		return "", err
	}

	var out []byte
	switch method.Name {
	case "price":
		out, err = method.Outputs.Pack(n.price)
	case "hasPaid", "getPayment":
		args, uerr := method.Inputs.Unpack(input[4:])
		if uerr != nil {
			return "", uerr
		}
		key := common.Hash(args[0].([32]byte))
		payment, ok := n.payments[key]
		if !ok {
			payment = ledger.PaymentTuple{Amount: big.NewInt(0), Timestamp: big.NewInt(0)}
		}
		if method.Name == "hasPaid" {
			out, err = method.Outputs.Pack(ok)
		} else {
			out, err = method.Outputs.Pack(payment)
		}
	}
	if err != nil {
		return "", err
	}
	return hexutil.Encode(out), nil
}
