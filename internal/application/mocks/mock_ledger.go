package mocks

import (
	"context"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockLedger is a mock type for the application.Ledger type
type MockLedger struct {
	mock.Mock
}

type MockLedger_Expecter struct {
	mock *mock.Mock
}

func (_m *MockLedger) EXPECT() *MockLedger_Expecter {
	return &MockLedger_Expecter{mock: &_m.Mock}
}

// HasPaid provides a mock function with given fields: ctx, requestID
func (_m *MockLedger) HasPaid(ctx context.Context, requestID string) (bool, error) {
	ret := _m.Called(ctx, requestID)

	if rf, ok := ret.Get(0).(func(context.Context, string) (bool, error)); ok {
		return rf(ctx, requestID)
	}
	return ret.Bool(0), ret.Error(1)
}

type MockLedger_HasPaid_Call struct {
	*mock.Call
}

func (_e *MockLedger_Expecter) HasPaid(ctx interface{}, requestID interface{}) *MockLedger_HasPaid_Call {
	return &MockLedger_HasPaid_Call{Call: _e.mock.On("HasPaid", ctx, requestID)}
}

func (_c *MockLedger_HasPaid_Call) Run(run func(ctx context.Context, requestID string)) *MockLedger_HasPaid_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(string))
	})
	return _c
}

func (_c *MockLedger_HasPaid_Call) Return(paid bool, err error) *MockLedger_HasPaid_Call {
	_c.Call.Return(paid, err)
	return _c
}

// GetPayment provides a mock function with given fields: ctx, requestID
func (_m *MockLedger) GetPayment(ctx context.Context, requestID string) (*application.LedgerPayment, error) {
	ret := _m.Called(ctx, requestID)

	if rf, ok := ret.Get(0).(func(context.Context, string) (*application.LedgerPayment, error)); ok {
		return rf(ctx, requestID)
	}

	var r0 *application.LedgerPayment
	if v := ret.Get(0); v != nil {
		r0 = v.(*application.LedgerPayment)
	}
	return r0, ret.Error(1)
}

type MockLedger_GetPayment_Call struct {
	*mock.Call
}

func (_e *MockLedger_Expecter) GetPayment(ctx interface{}, requestID interface{}) *MockLedger_GetPayment_Call {
	return &MockLedger_GetPayment_Call{Call: _e.mock.On("GetPayment", ctx, requestID)}
}

func (_c *MockLedger_GetPayment_Call) Run(run func(ctx context.Context, requestID string)) *MockLedger_GetPayment_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(string))
	})
	return _c
}

func (_c *MockLedger_GetPayment_Call) Return(payment *application.LedgerPayment, err error) *MockLedger_GetPayment_Call {
	_c.Call.Return(payment, err)
	return _c
}

// Price provides a mock function with given fields: ctx
func (_m *MockLedger) Price(ctx context.Context) (domain.Amount, error) {
	ret := _m.Called(ctx)

	if rf, ok := ret.Get(0).(func(context.Context) (domain.Amount, error)); ok {
		return rf(ctx)
	}
	return ret.Get(0).(domain.Amount), ret.Error(1)
}

type MockLedger_Price_Call struct {
	*mock.Call
}

func (_e *MockLedger_Expecter) Price(ctx interface{}) *MockLedger_Price_Call {
	return &MockLedger_Price_Call{Call: _e.mock.On("Price", ctx)}
}

func (_c *MockLedger_Price_Call) Return(price domain.Amount, err error) *MockLedger_Price_Call {
	_c.Call.Return(price, err)
	return _c
}

// BlockNumber provides a mock function with given fields: ctx
func (_m *MockLedger) BlockNumber(ctx context.Context) (uint64, error) {
	ret := _m.Called(ctx)

	if rf, ok := ret.Get(0).(func(context.Context) (uint64, error)); ok {
		return rf(ctx)
	}
	return ret.Get(0).(uint64), ret.Error(1)
}

type MockLedger_BlockNumber_Call struct {
	*mock.Call
}

func (_e *MockLedger_Expecter) BlockNumber(ctx interface{}) *MockLedger_BlockNumber_Call {
	return &MockLedger_BlockNumber_Call{Call: _e.mock.On("BlockNumber", ctx)}
}

func (_c *MockLedger_BlockNumber_Call) Return(block uint64, err error) *MockLedger_BlockNumber_Call {
	_c.Call.Return(block, err)
	return _c
}

// NewMockLedger creates a new instance of MockLedger. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockLedger(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLedger {
	m := &MockLedger{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ application.Ledger = (*MockLedger)(nil)
