package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brazapay/backend/internal/audit"
	"github.com/brazapay/backend/internal/models"
	"github.com/brazapay/backend/internal/processor"
)

// TransactionService creates deposits and withdrawals. Deposits are
// settled asynchronously through the webhook reconciler; withdrawals
// settle synchronously inside CreateWithdrawal.
type TransactionService struct {
	ledger    LedgerStore
	processor processor.Client
	audit     audit.Recorder
	qr        *QRService
	validator *ValidationHelper
}

func NewTransactionService(ledger LedgerStore, client processor.Client, recorder audit.Recorder) *TransactionService {
	return &TransactionService{
		ledger:    ledger,
		processor: client,
		audit:     recorder,
		qr:        NewQRService(),
		validator: NewValidationHelper(),
	}
}

// DepositResult is what a successful deposit creation returns: the
// pending entry's id plus the payment instrument for the payer.
type DepositResult struct {
	InternalID string
	ExternalID string
	QRCodeURL  string
	CopyPaste  string
	Fees       DepositFees
}

// WithdrawalResult is the outcome of a synchronously settled
// withdrawal.
type WithdrawalResult struct {
	InternalID      string
	Fees            WithdrawalFees
	NewBalanceCents int64
}

// CreateDeposit validates the amount, asks the processor for a PIX
// charge and persists the pending entry. The processor call comes
// first: if it fails nothing is persisted, and if the persist fails
// afterwards the dangling processor transaction is logged for manual
// reconciliation rather than leaving a ledger entry nothing backs.
func (s *TransactionService) CreateDeposit(ctx context.Context, userID string, grossCents int64, description string) (*DepositResult, error) {
	fees, err := ComputeDepositFees(grossCents)
	if err != nil {
		return nil, err
	}

	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if description == "" {
		description = "PIX deposit"
	}
	internalID := uuid.NewString()

	resp, err := s.processor.CreateTransaction(ctx, processor.CreateTransactionRequest{
		AmountCents:   grossCents,
		PayerName:     user.Name,
		PayerDocument: user.CPF,
		InternalID:    internalID,
		Description:   description,
	})
	if err != nil {
		return nil, err
	}

	qrCodeURL := resp.QRCodeURL
	if qrCodeURL == "" && resp.CopyPaste != "" {
		if rendered, qrErr := s.qr.DataURL(resp.CopyPaste); qrErr == nil {
			qrCodeURL = rendered
		} else {
			log.Printf("[TX] QR render failed for %s: %v", internalID, qrErr)
		}
	}

	entry := &models.LedgerEntry{
		ID:                internalID,
		ExternalID:        resp.ExternalID,
		UserID:            userID,
		Kind:              models.KindDeposit,
		GrossCents:        grossCents,
		NetCents:          fees.NetCents,
		OwnFeeCents:       fees.OwnFeeCents,
		ProcessorFeeCents: fees.ProcessorFeeCents,
		Description:       description,
		QRCodeURL:         qrCodeURL,
		CopyPaste:         resp.CopyPaste,
	}
	if err := s.ledger.CreatePendingEntry(ctx, entry); err != nil {
		log.Printf("[TX] pending entry persist failed after processor accepted (internal=%s external=%s), flag for manual reconciliation: %v",
			internalID, resp.ExternalID, err)
		return nil, err
	}

	s.audit.Record(ctx, userID, "PIX_CREATED", map[string]any{
		"transactionId": internalID,
		"externalId":    resp.ExternalID,
		"grossCents":    grossCents,
		"netCents":      fees.NetCents,
	})

	return &DepositResult{
		InternalID: internalID,
		ExternalID: resp.ExternalID,
		QRCodeURL:  qrCodeURL,
		CopyPaste:  resp.CopyPaste,
		Fees:       fees,
	}, nil
}

// CreateWithdrawal debits the account, then asks the processor to pay
// out. The debit happens before the processor call so the funds cannot
// be spent twice; a failed payout reverses the debit before the error
// is returned. No pending state survives this call.
func (s *TransactionService) CreateWithdrawal(ctx context.Context, userID string, grossCents int64, pixKey, pixKeyType, description string) (*WithdrawalResult, error) {
	fees, err := ComputeWithdrawalFees(grossCents)
	if err != nil {
		return nil, err
	}

	if description == "" {
		description = "PIX withdrawal"
	}

	debit, err := s.ledger.DebitForWithdrawal(ctx, userID, fees.TotalDebitCents)
	if err != nil {
		return nil, err
	}
	if !debit.Applied {
		return nil, ErrInsufficientFunds
	}

	payout, err := s.processor.CreatePayout(ctx, processor.CreatePayoutRequest{
		AmountCents: grossCents,
		PixKey:      pixKey,
		PixKeyType:  pixKeyType,
		Description: description,
	})
	if err != nil {
		if _, cbErr := s.ledger.CreditBack(ctx, userID, fees.TotalDebitCents); cbErr != nil {
			// The account is now short the debit: escalate loudly.
			log.Printf("[TX] CRITICAL: credit-back of %d cents failed for user %s after payout error, manual reconciliation required: %v",
				fees.TotalDebitCents, userID, cbErr)
		}
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:                uuid.NewString(),
		UserID:            userID,
		GrossCents:        grossCents,
		NetCents:          grossCents,
		OwnFeeCents:       0,
		ProcessorFeeCents: fees.ProcessorFeeCents,
		PixKey:            pixKey,
		PixKeyType:        pixKeyType,
		Description:       description,
	}
	if payout != nil {
		entry.ExternalID = payout.ExternalID
	}
	if err := s.ledger.RecordSettledWithdrawal(ctx, entry); err != nil {
		log.Printf("[TX] settled withdrawal record failed (internal=%s user=%s), flag for manual reconciliation: %v",
			entry.ID, userID, err)
		return nil, err
	}

	s.audit.Record(ctx, userID, "WITHDRAW_PROCESSED", map[string]any{
		"transactionId":   entry.ID,
		"grossCents":      grossCents,
		"totalDebitCents": fees.TotalDebitCents,
		"pixKey":          pixKey,
	})

	return &WithdrawalResult{
		InternalID:      entry.ID,
		Fees:            fees,
		NewBalanceCents: debit.NewBalanceCents,
	}, nil
}

type createDepositRequest struct {
	AmountCents int64  `json:"amountCents" validate:"required,gte=300"`
	Description string `json:"description" validate:"omitempty,max=200"`
}

type withdrawRequest struct {
	AmountCents int64  `json:"amountCents" validate:"required,gte=1000"`
	PixKey      string `json:"pixKey" validate:"required"`
	PixKeyType  string `json:"pixKeyType" validate:"required,oneof=CPF CNPJ EMAIL TELEFONE CHAVE_ALEATORIA"`
	Description string `json:"description" validate:"omitempty,max=200"`
}

// HandleCreateDeposit creates a PIX deposit.
// @Summary Create PIX deposit
// @Description Create a pending PIX deposit and return the payment instrument
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createDepositRequest true "Deposit request"
// @Success 201 {object} map[string]interface{} "Deposit created"
// @Failure 400 {object} ErrorResponse "Invalid amount"
// @Failure 502 {object} ErrorResponse "Processor failure"
// @Router /transactions [post]
func (s *TransactionService) HandleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createDepositRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.CreateDeposit(r.Context(), userID, req.AmountCents, req.Description)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"transactionId": result.InternalID,
		"externalId":    result.ExternalID,
		"qrcodeUrl":     result.QRCodeURL,
		"copyPaste":     result.CopyPaste,
		"amount":        FormatCents(req.AmountCents),
		"netAmount":     FormatCents(result.Fees.NetCents),
		"fees": map[string]string{
			"platform":  FormatCents(result.Fees.OwnFeeCents),
			"processor": FormatCents(result.Fees.ProcessorFeeCents),
		},
		"status": models.StatusPending,
	})
}

// HandleWithdraw settles a PIX withdrawal.
// @Summary Create PIX withdrawal
// @Description Debit the balance and pay out to the given PIX key
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body withdrawRequest true "Withdrawal request"
// @Success 200 {object} map[string]interface{} "Withdrawal settled"
// @Failure 400 {object} ErrorResponse "Invalid amount or insufficient funds"
// @Failure 502 {object} ErrorResponse "Processor failure"
// @Router /transactions/withdraw [post]
func (s *TransactionService) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.CreateWithdrawal(r.Context(), userID, req.AmountCents, req.PixKey, req.PixKeyType, req.Description)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"transactionId": result.InternalID,
		"amount":        FormatCents(req.AmountCents),
		"fee":           FormatCents(result.Fees.ProcessorFeeCents),
		"newBalance":    FormatCents(result.NewBalanceCents),
	})
}

// HandleListTransactions lists the caller's ledger entries.
// @Summary List transactions
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param kind query string false "Filter by kind (DEPOSIT, WITHDRAWAL)"
// @Param status query string false "Filter by status (PENDING, APPROVED, REFUSED)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{} "Transactions"
// @Router /transactions [get]
func (s *TransactionService) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	filter := EntryFilter{
		Kind:   r.URL.Query().Get("kind"),
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	entries, err := s.ledger.ListEntries(r.Context(), userID, filter)
	if err != nil {
		log.Printf("[TX] list failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	views := make([]map[string]any, 0, len(entries))
	for i := range entries {
		views = append(views, entryView(&entries[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"transactions": views,
		"count":        len(views),
	})
}

// HandleGetTransaction returns one of the caller's entries.
// @Summary Get transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction id"
// @Success 200 {object} map[string]interface{} "Transaction"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /transactions/{id} [get]
func (s *TransactionService) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entry, err := s.ledger.GetEntry(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, ErrEntryNotFound) {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entryView(entry))
}

// HandleBalance returns the caller's current balance.
// @Summary Get balance
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Balance"
// @Router /accounts/balance [get]
func (s *TransactionService) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := s.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"balance": FormatCents(balance)})
}

func (s *TransactionService) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *TransactionService) writeDomainError(w http.ResponseWriter, err error) {
	var procErr *processor.Error
	switch {
	case errors.Is(err, ErrInvalidAmount):
		SendErrorResponse(w, "Invalid amount: "+err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
	case errors.Is(err, ErrUserNotFound):
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
	case errors.As(err, &procErr):
		log.Printf("[TX] processor error: %v", procErr)
		SendErrorResponse(w, "Payment processor unavailable", http.StatusBadGateway, nil)
	default:
		log.Printf("[TX] internal error: %v", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
	}
}

func entryView(e *models.LedgerEntry) map[string]any {
	return map[string]any{
		"id":           e.ID,
		"externalId":   e.ExternalID,
		"kind":         e.Kind,
		"grossAmount":  FormatCents(e.GrossCents),
		"netAmount":    FormatCents(e.NetCents),
		"platformFee":  FormatCents(e.OwnFeeCents),
		"processorFee": FormatCents(e.ProcessorFeeCents),
		"status":       e.Status,
		"pixKey":       e.PixKey,
		"pixKeyType":   e.PixKeyType,
		"description":  e.Description,
		"qrcodeUrl":    e.QRCodeURL,
		"copyPaste":    e.CopyPaste,
		"createdAt":    e.CreatedAt,
		"updatedAt":    e.UpdatedAt,
		"method":       "PIX",
	}
}

func userIDFromContext(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	return userID, ok && userID != ""
}
