package services

// VerifyCommand carries the redemption proof presented in X-PAYMENT.
type VerifyCommand struct {
	RequestID string
	TxHash    string
}
