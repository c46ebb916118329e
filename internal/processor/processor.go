package processor

import (
	"context"
	"fmt"
)

// Client is the connector to the external PIX payment processor. The
// core calls it but does not own the processor's behavior; deposits it
// creates are confirmed later through an asynchronous webhook.
type Client interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResponse, error)
	CreatePayout(ctx context.Context, req CreatePayoutRequest) (*CreatePayoutResponse, error)
	GetTransaction(ctx context.Context, externalID string) (*TransactionStatus, error)
}

// CreateTransactionRequest asks the processor for a PIX charge. The
// internal id is echoed back in webhook callbacks.
type CreateTransactionRequest struct {
	AmountCents   int64
	PayerName     string
	PayerDocument string
	InternalID    string
	Description   string
	CallbackURL   string
}

// CreateTransactionResponse carries the payment instrument. ExternalID
// may be empty when the processor assigns its id asynchronously.
type CreateTransactionResponse struct {
	ExternalID string
	QRCodeURL  string
	CopyPaste  string
}

// CreatePayoutRequest asks the processor to pay out to a PIX key.
type CreatePayoutRequest struct {
	AmountCents int64
	PixKey      string
	PixKeyType  string
	Description string
}

type CreatePayoutResponse struct {
	ExternalID string
}

// TransactionStatus is the processor-side view of a transaction.
type TransactionStatus struct {
	ExternalID string
	Status     string
}

// Error is any failed processor call: non-2xx response, timeout or
// transport failure. The upstream body is kept for diagnostics.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processor call failed: %v", e.Err)
	}
	return fmt.Sprintf("processor returned status %d: %s", e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error {
	return e.Err
}
