package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of fractional digits in the ledger's native unit.
const Decimals = 18

const requestIDBytes = 32

var weiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// NewRequestID draws a 256-bit identifier from crypto/rand and renders it
// the way the ledger expects a bytes32 argument.
func NewRequestID() (string, error) {
	buf := make([]byte, requestIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// ValidateRequestID accepts 0x followed by exactly 64 hex characters.
func ValidateRequestID(id string) error {
	if len(id) != 2+2*requestIDBytes || !strings.HasPrefix(id, "0x") {
		return NewInvalidRequestIDError(id)
	}
	if _, err := hex.DecodeString(id[2:]); err != nil {
		return NewInvalidRequestIDError(id)
	}
	return nil
}

// Amount is a non-negative quantity in the ledger's base unit (wei).
type Amount struct {
	wei *big.Int
}

func NewAmount(wei *big.Int) (Amount, error) {
	if wei == nil {
		return Amount{}, NewInvalidAmountError("<nil>", errors.New("amount is required"))
	}
	if wei.Sign() < 0 {
		return Amount{}, NewInvalidAmountError(wei.String(), errors.New("amount cannot be negative"))
	}
	return Amount{wei: new(big.Int).Set(wei)}, nil
}

// ParseWei reads a base-10 integer wei amount.
func ParseWei(s string) (Amount, error) {
	wei, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, NewInvalidAmountError(s, errors.New("not a base-10 integer"))
	}
	return NewAmount(wei)
}

// ParseAmount reads a decimal string such as "0.01" in whole units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, NewInvalidAmountError(s, errors.New("amount is empty"))
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > Decimals {
		return Amount{}, NewInvalidAmountError(s, fmt.Errorf("more than %d decimal places", Decimals))
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	if strings.ContainsAny(digits, "+-") {
		return Amount{}, NewInvalidAmountError(s, errors.New("sign not allowed"))
	}

	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, NewInvalidAmountError(s, errors.New("not a decimal number"))
	}
	return NewAmount(wei)
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Wei returns a copy of the underlying value.
func (a Amount) Wei() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.wei)
}

func (a Amount) Cmp(b Amount) int {
	return a.Wei().Cmp(b.Wei())
}

func (a Amount) LessThan(b Amount) bool {
	return a.Cmp(b) < 0
}

// Shortfall returns how much a falls short of b, or zero.
func (a Amount) Shortfall(b Amount) Amount {
	diff := new(big.Int).Sub(b.Wei(), a.Wei())
	if diff.Sign() < 0 {
		diff.SetInt64(0)
	}
	return Amount{wei: diff}
}

func (a Amount) IsZero() bool {
	return a.wei == nil || a.wei.Sign() == 0
}

func (a Amount) Clone() Amount {
	return Amount{wei: a.Wei()}
}

// String formats the amount in whole units without trailing zeros.
func (a Amount) String() string {
	q, r := new(big.Int).QuoRem(a.Wei(), weiPerUnit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	rs := r.String()
	frac := strings.Repeat("0", Decimals-len(rs)) + rs
	return q.String() + "." + strings.TrimRight(frac, "0")
}
