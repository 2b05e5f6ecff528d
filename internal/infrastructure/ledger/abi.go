package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ContractABI describes the read-only surface of the payment contract.
const ContractABI = `[
	{
		"type": "function",
		"name": "hasPaid",
		"stateMutability": "view",
		"inputs": [{"name": "requestId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "getPayment",
		"stateMutability": "view",
		"inputs": [{"name": "requestId", "type": "bytes32"}],
		"outputs": [{
			"name": "",
			"type": "tuple",
			"components": [
				{"name": "payer", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "timestamp", "type": "uint256"},
				{"name": "exists", "type": "bool"}
			]
		}]
	},
	{
		"type": "function",
		"name": "price",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`

const (
	methodHasPaid    = "hasPaid"
	methodGetPayment = "getPayment"
	methodPrice      = "price"
)

// PaymentTuple mirrors the getPayment return tuple.
type PaymentTuple struct {
	Payer     common.Address
	Amount    *big.Int
	Timestamp *big.Int
	Exists    bool
}
