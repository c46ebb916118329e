package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/brazapay/backend/internal/models"
	"github.com/brazapay/backend/internal/processor"
)

// MockLedgerStore is a testify mock for LedgerStore.
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) CreatePendingEntry(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerStore) RecordSettledWithdrawal(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerStore) AttachExternalID(ctx context.Context, internalID, externalID string) error {
	args := m.Called(ctx, internalID, externalID)
	return args.Error(0)
}

func (m *MockLedgerStore) ResolveByAnyID(ctx context.Context, candidate string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, candidate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerStore) ApplyTerminalTransition(ctx context.Context, internalID, outcome string) (TransitionResult, error) {
	args := m.Called(ctx, internalID, outcome)
	return args.Get(0).(TransitionResult), args.Error(1)
}

func (m *MockLedgerStore) DebitForWithdrawal(ctx context.Context, userID string, amountCents int64) (DebitResult, error) {
	args := m.Called(ctx, userID, amountCents)
	return args.Get(0).(DebitResult), args.Error(1)
}

func (m *MockLedgerStore) CreditBack(ctx context.Context, userID string, amountCents int64) (int64, error) {
	args := m.Called(ctx, userID, amountCents)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerStore) GetEntry(ctx context.Context, userID, internalID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, internalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerStore) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockLedgerStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockProcessorClient is a testify mock for processor.Client.
type MockProcessorClient struct {
	mock.Mock
}

func (m *MockProcessorClient) CreateTransaction(ctx context.Context, req processor.CreateTransactionRequest) (*processor.CreateTransactionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.CreateTransactionResponse), args.Error(1)
}

func (m *MockProcessorClient) CreatePayout(ctx context.Context, req processor.CreatePayoutRequest) (*processor.CreatePayoutResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.CreatePayoutResponse), args.Error(1)
}

func (m *MockProcessorClient) GetTransaction(ctx context.Context, externalID string) (*processor.TransactionStatus, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.TransactionStatus), args.Error(1)
}

// MockRecorder is a testify mock for audit.Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, userID, action string, payload any) {
	m.Called(ctx, userID, action, payload)
}
