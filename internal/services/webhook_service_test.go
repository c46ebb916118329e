package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/brazapay/backend/internal/models"
)

func TestParseCallbackFieldPriority(t *testing.T) {
	payload, err := ParseCallback(map[string]any{
		"transactionId":  "primary",
		"transaction_id": "secondary",
		"id":             "tertiary",
		"txId":           "last",
		"status":         "approved",
	})
	assert.NoError(t, err)
	assert.Equal(t, "primary", payload.TransactionID)
	assert.Equal(t, "secondary", payload.AltID)

	payload, err = ParseCallback(map[string]any{
		"transaction_id": "secondary",
		"txId":           "last",
		"status":         "paid",
	})
	assert.NoError(t, err)
	assert.Equal(t, "secondary", payload.TransactionID)
	assert.Equal(t, "last", payload.AltID)

	payload, err = ParseCallback(map[string]any{
		"txId":          "last",
		"paymentStatus": "paid",
	})
	assert.NoError(t, err)
	assert.Equal(t, "last", payload.TransactionID)
	assert.Equal(t, "", payload.AltID)
	assert.Equal(t, "paid", payload.Status)
}

func TestParseCallbackRepeatedIdentifierIsNotAnAlternate(t *testing.T) {
	payload, err := ParseCallback(map[string]any{
		"transactionId":  "same-id",
		"transaction_id": "same-id",
		"status":         "paid",
	})
	assert.NoError(t, err)
	assert.Equal(t, "same-id", payload.TransactionID)
	assert.Equal(t, "", payload.AltID)
}

func TestParseCallbackStatusPriority(t *testing.T) {
	payload, err := ParseCallback(map[string]any{
		"id":            "tx-1",
		"status":        "approved",
		"paymentStatus": "failed",
	})
	assert.NoError(t, err)
	assert.Equal(t, "approved", payload.Status)
}

func TestParseCallbackNumericID(t *testing.T) {
	payload, err := ParseCallback(map[string]any{
		"id":     json.Number("987654"),
		"status": "paid",
	})
	assert.NoError(t, err)
	assert.Equal(t, "987654", payload.TransactionID)
}

func TestParseCallbackMissingIdentifier(t *testing.T) {
	_, err := ParseCallback(map[string]any{
		"status": "approved",
		"amount": json.Number("100"),
	})
	assert.ErrorIs(t, err, ErrMissingIdentifier)
}

func TestNormalizeStatusVocabulary(t *testing.T) {
	for _, token := range []string{"approved", "PAID", "Success", "completed", "COMPLETO"} {
		assert.Equal(t, models.StatusApproved, normalizeStatus(token), token)
	}
	for _, token := range []string{"cancelled", "canceled", "FAILED", "rejected", "error"} {
		assert.Equal(t, models.StatusRefused, normalizeStatus(token), token)
	}
	for _, token := range []string{"", "pending", "processing", "em_analise"} {
		assert.Equal(t, "", normalizeStatus(token), token)
	}
}

func TestHandleCallbackAppliesApproval(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	entry := &models.LedgerEntry{
		ID:         "internal-1",
		ExternalID: "ext-1",
		UserID:     "user-1",
		Kind:       models.KindDeposit,
		GrossCents: 10000,
		NetCents:   9500,
		Status:     models.StatusPending,
	}
	ledger.On("ResolveByAnyID", mock.Anything, "ext-1").Return(entry, nil)
	ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusApproved).
		Return(TransitionResult{Applied: true, NewBalanceCents: 9500}, nil)
	recorder.On("Record", mock.Anything, "user-1", "PAYMENT_CONFIRMED", mock.Anything).Return()

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{TransactionID: "ext-1", Status: "paid"})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "internal-1", result.InternalID)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, int64(9500), result.NewBalanceCents)
	ledger.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestHandleCallbackDuplicateDelivery(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	entry := &models.LedgerEntry{
		ID:     "internal-1",
		UserID: "user-1",
		Status: models.StatusApproved,
	}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
	ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusApproved).
		Return(TransitionResult{Applied: false}, nil)

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{TransactionID: "internal-1", Status: "approved"})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, result.Outcome)
	recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallbackUnknownStatusLeavesEntry(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	entry := &models.LedgerEntry{ID: "internal-1", UserID: "user-1", Status: models.StatusPending}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{TransactionID: "internal-1", Status: "processing"})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeUnprocessedStatus, result.Outcome)
	ledger.AssertNotCalled(t, "ApplyTerminalTransition", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallbackUnmatched(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	ledger.On("ResolveByAnyID", mock.Anything, "ghost").Return(nil, ErrEntryNotFound)

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{TransactionID: "ghost", Status: "paid"})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, result.Outcome)
}

func TestHandleCallbackRefusal(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	entry := &models.LedgerEntry{ID: "internal-1", UserID: "user-1", Status: models.StatusPending}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
	ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusRefused).
		Return(TransitionResult{Applied: true}, nil)
	recorder.On("Record", mock.Anything, "user-1", "PAYMENT_REFUSED", mock.Anything).Return()

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{TransactionID: "internal-1", Status: "cancelled"})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, models.StatusRefused, result.Status)
	recorder.AssertExpectations(t)
}

func TestHandleCallbackBackfillsExternalID(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	// Entry resolved by our internal id, processor id not stored yet.
	entry := &models.LedgerEntry{
		ID:         "internal-1",
		ExternalID: "",
		UserID:     "user-1",
		Kind:       models.KindDeposit,
		GrossCents: 10000,
		NetCents:   9500,
		Status:     models.StatusPending,
	}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
	ledger.On("AttachExternalID", mock.Anything, "internal-1", "mp-991").Return(nil)
	ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusApproved).
		Return(TransitionResult{Applied: true, NewBalanceCents: 9500}, nil)
	recorder.On("Record", mock.Anything, "user-1", "PAYMENT_CONFIRMED", mock.Anything).Return()

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{
		TransactionID: "internal-1",
		AltID:         "mp-991",
		Status:        "paid",
	})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	ledger.AssertExpectations(t)
}

func TestHandleCallbackBackfillConflictEscalates(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	entry := &models.LedgerEntry{ID: "internal-1", ExternalID: "", UserID: "user-1", Status: models.StatusPending}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
	ledger.On("AttachExternalID", mock.Anything, "internal-1", "mp-991").Return(ErrInconsistentExternalID)

	_, err := svc.HandleCallback(context.Background(), CallbackPayload{
		TransactionID: "internal-1",
		AltID:         "mp-991",
		Status:        "paid",
	})

	assert.ErrorIs(t, err, ErrInconsistentExternalID)
	ledger.AssertNotCalled(t, "ApplyTerminalTransition", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallbackSkipsBackfillWhenExternalIDSet(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	svc := NewWebhookService(ledger, recorder, nil)

	entry := &models.LedgerEntry{ID: "internal-1", ExternalID: "ext-1", UserID: "user-1", Status: models.StatusPending}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
	ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusApproved).
		Return(TransitionResult{Applied: true, NewBalanceCents: 9500}, nil)
	recorder.On("Record", mock.Anything, "user-1", "PAYMENT_CONFIRMED", mock.Anything).Return()

	_, err := svc.HandleCallback(context.Background(), CallbackPayload{
		TransactionID: "internal-1",
		AltID:         "mp-991",
		Status:        "paid",
	})

	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "AttachExternalID", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallbackMarksDeliveryInRedis(t *testing.T) {
	ledger := new(MockLedgerStore)
	recorder := new(MockRecorder)
	redisClient, redisMock := redismock.NewClientMock()
	svc := NewWebhookService(ledger, recorder, redisClient)

	entry := &models.LedgerEntry{ID: "internal-1", UserID: "user-1", Status: models.StatusPending}
	ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
	ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusApproved).
		Return(TransitionResult{Applied: true, NewBalanceCents: 9500}, nil)
	recorder.On("Record", mock.Anything, "user-1", "PAYMENT_CONFIRMED", mock.Anything).Return()

	redisMock.ExpectSet("webhook:processed:internal-1", models.StatusApproved, 24*time.Hour).SetVal("OK")

	result, err := svc.HandleCallback(context.Background(), CallbackPayload{TransactionID: "internal-1", Status: "approved"})

	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHandleProcessorCallbackHTTP(t *testing.T) {
	t.Run("missing identifier returns 400", func(t *testing.T) {
		svc := NewWebhookService(new(MockLedgerStore), new(MockRecorder), nil)

		body, _ := json.Marshal(map[string]any{"status": "paid"})
		req := httptest.NewRequest(http.MethodPost, "/webhook/pix", bytes.NewReader(body))
		w := httptest.NewRecorder()

		svc.HandleProcessorCallback(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unmatched returns 404 with searched id", func(t *testing.T) {
		ledger := new(MockLedgerStore)
		ledger.On("ResolveByAnyID", mock.Anything, "nope").Return(nil, ErrEntryNotFound)
		svc := NewWebhookService(ledger, new(MockRecorder), nil)

		body, _ := json.Marshal(map[string]any{"transactionId": "nope", "status": "paid"})
		req := httptest.NewRequest(http.MethodPost, "/webhook/pix", bytes.NewReader(body))
		w := httptest.NewRecorder()

		svc.HandleProcessorCallback(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "nope", resp["searchedId"])
	})

	t.Run("approval returns new balance", func(t *testing.T) {
		ledger := new(MockLedgerStore)
		recorder := new(MockRecorder)
		entry := &models.LedgerEntry{ID: "internal-1", UserID: "user-1", Status: models.StatusPending}
		ledger.On("ResolveByAnyID", mock.Anything, "internal-1").Return(entry, nil)
		ledger.On("ApplyTerminalTransition", mock.Anything, "internal-1", models.StatusApproved).
			Return(TransitionResult{Applied: true, NewBalanceCents: 9500}, nil)
		recorder.On("Record", mock.Anything, "user-1", "PAYMENT_CONFIRMED", mock.Anything).Return()
		svc := NewWebhookService(ledger, recorder, nil)

		body, _ := json.Marshal(map[string]any{"transactionId": "internal-1", "status": "approved"})
		req := httptest.NewRequest(http.MethodPost, "/webhook/pix", bytes.NewReader(body))
		w := httptest.NewRecorder()

		svc.HandleProcessorCallback(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, "95.00", resp["newBalance"])
	})
}
