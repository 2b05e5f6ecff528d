package rest

// Wire formats of the x402 resource endpoint and /health.

type PaymentTerms struct {
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chainId"`
	ContractAddress string `json:"contractAddress"`
	RPCURL          string `json:"rpcUrl"`
	ExplorerURL     string `json:"explorerUrl,omitempty"`
}

type Instructions struct {
	Step1 string `json:"step1"`
	Step2 string `json:"step2"`
	Step3 string `json:"step3"`
}

type ChallengeResponse struct {
	Error             string       `json:"error"`
	RequestID         string       `json:"requestId"`
	PreviousRequestID string       `json:"previousRequestId,omitempty"`
	Payment           PaymentTerms `json:"payment"`
	Instructions      Instructions `json:"instructions"`
	Message           string       `json:"message"`
	ExpiresAt         string       `json:"expiresAt,omitempty"`
}

type NotVerifiedResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

type InsufficientPaymentResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
	Paid      string `json:"paid"`
	Required  string `json:"required"`
	Shortfall string `json:"shortfall"`
	Currency  string `json:"currency"`
}

type PaymentProvenance struct {
	RequestID string `json:"requestId"`
	PaidBy    string `json:"paidBy"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp"`
	TxHash    string `json:"txHash,omitempty"`
}

type ResourceResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data"`
	Payment PaymentProvenance `json:"payment"`
}

type HealthResponse struct {
	Status       string         `json:"status"`
	Contract     string         `json:"contract"`
	Network      string         `json:"network"`
	ChainID      int64          `json:"chainId"`
	Price        string         `json:"price"`
	CurrentBlock uint64         `json:"currentBlock"`
	Requests     map[string]int `json:"requests,omitempty"`
	Timestamp    string         `json:"timestamp"`
}

type UnhealthyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}
