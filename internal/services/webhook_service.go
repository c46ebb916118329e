package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brazapay/backend/internal/audit"
	"github.com/brazapay/backend/internal/models"
)

// ErrMissingIdentifier rejects callback payloads that carry none of the
// recognized transaction identifier fields.
var ErrMissingIdentifier = errors.New("no transaction identifier in callback payload")

// Field candidates tolerated in callback payloads, in priority order.
// The processor does not use consistent field names across deliveries.
var (
	identifierFields = []string{"transactionId", "transaction_id", "id", "txId"}
	statusFields     = []string{"status", "paymentStatus"}
)

// ReconciliationOutcome classifies what a callback did.
type ReconciliationOutcome string

const (
	// OutcomeApplied: the terminal transition ran and, for approved
	// deposits, the balance was credited exactly once.
	OutcomeApplied ReconciliationOutcome = "applied"
	// OutcomeAlreadyProcessed: duplicate delivery for a terminal entry.
	// Externally indistinguishable from the first delivery's success.
	OutcomeAlreadyProcessed ReconciliationOutcome = "already_processed"
	// OutcomeUnprocessedStatus: the status token is outside the known
	// vocabulary; the entry is left untouched for a later delivery.
	OutcomeUnprocessedStatus ReconciliationOutcome = "unprocessed_status"
	// OutcomeUnmatched: no entry matches the identifier exactly. The
	// processor is expected to retry delivery.
	OutcomeUnmatched ReconciliationOutcome = "unmatched"
)

// ReconciliationResult is the outcome of one callback delivery.
type ReconciliationResult struct {
	Outcome         ReconciliationOutcome
	InternalID      string
	Status          string
	NewBalanceCents int64
}

// CallbackPayload is the strongly-typed form of a processor callback.
// The loosely-shaped JSON never travels past ParseCallback.
type CallbackPayload struct {
	TransactionID string
	// AltID is a secondary identifier the processor sent alongside the
	// primary one, typically its own transaction id echoed next to ours.
	AltID  string
	Status string
}

// ParseCallback extracts the identifier and status token from a raw
// callback body. Extraction fails closed: with no recognized identifier
// field the delivery is rejected rather than guessed at. When the
// payload carries more than one identifier, the highest-priority value
// wins and the first distinct runner-up is kept as AltID.
func ParseCallback(raw map[string]any) (CallbackPayload, error) {
	var p CallbackPayload

	for _, field := range identifierFields {
		v := stringField(raw, field)
		if v == "" {
			continue
		}
		if p.TransactionID == "" {
			p.TransactionID = v
		} else if p.AltID == "" && v != p.TransactionID {
			p.AltID = v
		}
	}
	if p.TransactionID == "" {
		return CallbackPayload{}, ErrMissingIdentifier
	}

	for _, field := range statusFields {
		if v := stringField(raw, field); v != "" {
			p.Status = v
			break
		}
	}
	return p, nil
}

func stringField(raw map[string]any, field string) string {
	switch v := raw[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// normalizeStatus maps processor status tokens onto the internal
// vocabulary. Unknown tokens map to empty, meaning "leave the entry
// untouched".
func normalizeStatus(token string) string {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "approved", "paid", "success", "completed", "completo":
		return models.StatusApproved
	case "cancelled", "canceled", "failed", "rejected", "error":
		return models.StatusRefused
	default:
		return ""
	}
}

// WebhookService reconciles asynchronous processor confirmations
// against the ledger. All idempotency lives in the ledger store's
// terminal transition; the redis marker is observability only.
type WebhookService struct {
	ledger LedgerStore
	audit  audit.Recorder
	redis  *redis.Client
}

func NewWebhookService(ledger LedgerStore, recorder audit.Recorder, redisClient *redis.Client) *WebhookService {
	return &WebhookService{
		ledger: ledger,
		audit:  recorder,
		redis:  redisClient,
	}
}

// HandleCallback resolves the payload to a ledger entry and applies the
// one-time terminal transition. Duplicate and unknown-status deliveries
// return success outcomes without mutation; only store-level failures
// and integrity violations surface as errors.
func (s *WebhookService) HandleCallback(ctx context.Context, p CallbackPayload) (ReconciliationResult, error) {
	entry, err := s.ledger.ResolveByAnyID(ctx, p.TransactionID)
	if errors.Is(err, ErrEntryNotFound) {
		log.Printf("[WEBHOOK] no entry matches callback id %q", p.TransactionID)
		return ReconciliationResult{Outcome: OutcomeUnmatched}, nil
	}
	if err != nil {
		return ReconciliationResult{}, err
	}

	// Deposits are created before the processor assigns its own id, so
	// the entry may still lack one when the first callback arrives. When
	// the delivery resolved by our internal id and carried a second
	// identifier, attach it now so later deliveries match directly.
	if entry.ExternalID == "" && p.AltID != "" && p.AltID != entry.ID {
		if err := s.ledger.AttachExternalID(ctx, entry.ID, p.AltID); err != nil {
			if errors.Is(err, ErrInconsistentExternalID) {
				return ReconciliationResult{}, err
			}
			log.Printf("[WEBHOOK] could not attach external id %q to entry %s: %v", p.AltID, entry.ID, err)
		} else {
			entry.ExternalID = p.AltID
		}
	}

	outcome := normalizeStatus(p.Status)
	if outcome == "" {
		log.Printf("[WEBHOOK] unmapped status %q for entry %s, leaving pending", p.Status, entry.ID)
		return ReconciliationResult{Outcome: OutcomeUnprocessedStatus, InternalID: entry.ID}, nil
	}

	res, err := s.ledger.ApplyTerminalTransition(ctx, entry.ID, outcome)
	if err != nil {
		return ReconciliationResult{}, err
	}
	if !res.Applied {
		log.Printf("[WEBHOOK] entry %s already terminal, duplicate delivery acknowledged", entry.ID)
		return ReconciliationResult{Outcome: OutcomeAlreadyProcessed, InternalID: entry.ID}, nil
	}

	action := "PAYMENT_REFUSED"
	if outcome == models.StatusApproved {
		action = "PAYMENT_CONFIRMED"
	}
	s.audit.Record(ctx, entry.UserID, action, map[string]any{
		"transactionId":   entry.ID,
		"externalId":      entry.ExternalID,
		"status":          outcome,
		"newBalanceCents": res.NewBalanceCents,
	})

	if s.redis != nil {
		key := fmt.Sprintf("webhook:processed:%s", entry.ID)
		if err := s.redis.Set(ctx, key, outcome, 24*time.Hour).Err(); err != nil {
			log.Printf("[WEBHOOK] failed to mark delivery for %s: %v", entry.ID, err)
		}
	}

	return ReconciliationResult{
		Outcome:         OutcomeApplied,
		InternalID:      entry.ID,
		Status:          outcome,
		NewBalanceCents: res.NewBalanceCents,
	}, nil
}

// HandleProcessorCallback receives webhook deliveries from the payment
// processor.
// @Summary Processor webhook
// @Description Receives asynchronous PIX confirmation callbacks
// @Tags webhook
// @Accept json
// @Produce json
// @Param payload body object true "Processor callback payload"
// @Success 200 {object} map[string]interface{} "Callback processed"
// @Failure 400 {object} ErrorResponse "No recognizable identifier"
// @Failure 404 {object} ErrorResponse "No matching transaction"
// @Router /webhook/pix [post]
func (s *WebhookService) HandleProcessorCallback(w http.ResponseWriter, r *http.Request) {
	log.Printf("[WEBHOOK] delivery from %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		SendErrorResponse(w, "Invalid callback body", http.StatusBadRequest, nil)
		return
	}

	payload, err := ParseCallback(raw)
	if err != nil {
		log.Printf("[WEBHOOK] rejected delivery: %v", err)
		SendErrorResponse(w, "Transaction identifier not found in payload", http.StatusBadRequest, nil)
		return
	}

	result, err := s.HandleCallback(r.Context(), payload)
	if err != nil {
		log.Printf("[WEBHOOK] reconciliation failed for %q: %v", payload.TransactionID, err)
		SendErrorResponse(w, "Failed to process callback", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch result.Outcome {
	case OutcomeUnmatched:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error":      "Transaction not found",
			"searchedId": payload.TransactionID,
		})
	case OutcomeUnprocessedStatus:
		json.NewEncoder(w).Encode(map[string]any{
			"success":        true,
			"message":        "Callback received but status not processed",
			"receivedStatus": payload.Status,
		})
	case OutcomeAlreadyProcessed:
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "Transaction already processed",
		})
	default:
		resp := map[string]any{
			"success":       true,
			"message":       "Status updated",
			"transactionId": result.InternalID,
		}
		if result.Status == models.StatusApproved {
			resp["message"] = "Payment confirmed and balance credited"
			resp["newBalance"] = FormatCents(result.NewBalanceCents)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
