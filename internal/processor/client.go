package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/brazapay/backend/internal/config"
)

const defaultTimeout = 30 * time.Second

// HTTPClient talks to the processor's REST API. Credentials travel in
// the ci/cs headers on every call.
type HTTPClient struct {
	cfg    *config.ProcessorConfig
	client *http.Client
}

func NewHTTPClient(cfg *config.ProcessorConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type createTransactionPayload struct {
	Amount         int64  `json:"amount"`
	PayerName      string `json:"payerName"`
	PayerDocument  string `json:"payerDocument"`
	TransactionID  string `json:"transactionId"`
	ProjectWebhook string `json:"projectWebhook"`
	Description    string `json:"description"`
}

type createTransactionReply struct {
	Data struct {
		TransactionID string `json:"transactionId"`
		QRCodeURL     string `json:"qrcodeUrl"`
		CopyPaste     string `json:"copyPaste"`
	} `json:"data"`
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResponse, error) {
	payload := createTransactionPayload{
		Amount:         req.AmountCents,
		PayerName:      req.PayerName,
		PayerDocument:  req.PayerDocument,
		TransactionID:  req.InternalID,
		ProjectWebhook: req.CallbackURL,
		Description:    req.Description,
	}
	if payload.ProjectWebhook == "" {
		payload.ProjectWebhook = c.cfg.CallbackURL
	}

	var reply createTransactionReply
	if err := c.post(ctx, "/api/transactions/create", payload, &reply); err != nil {
		return nil, err
	}

	return &CreateTransactionResponse{
		ExternalID: reply.Data.TransactionID,
		QRCodeURL:  reply.Data.QRCodeURL,
		CopyPaste:  reply.Data.CopyPaste,
	}, nil
}

type createPayoutPayload struct {
	Amount      int64  `json:"amount"`
	PixKey      string `json:"pixKey"`
	PixKeyType  string `json:"pixKeyType"`
	Description string `json:"description"`
}

type createPayoutReply struct {
	Data struct {
		TransactionID string `json:"transactionId"`
	} `json:"data"`
}

func (c *HTTPClient) CreatePayout(ctx context.Context, req CreatePayoutRequest) (*CreatePayoutResponse, error) {
	payload := createPayoutPayload{
		Amount:      req.AmountCents,
		PixKey:      req.PixKey,
		PixKeyType:  req.PixKeyType,
		Description: req.Description,
	}

	var reply createPayoutReply
	if err := c.post(ctx, "/api/transactions/withdraw", payload, &reply); err != nil {
		return nil, err
	}

	return &CreatePayoutResponse{ExternalID: reply.Data.TransactionID}, nil
}

type transactionStatusReply struct {
	Data struct {
		TransactionID string `json:"transactionId"`
		Status        string `json:"status"`
	} `json:"data"`
}

func (c *HTTPClient) GetTransaction(ctx context.Context, externalID string) (*TransactionStatus, error) {
	var reply transactionStatusReply
	if err := c.do(ctx, http.MethodGet, "/api/transactions/"+externalID, nil, &reply); err != nil {
		return nil, err
	}
	return &TransactionStatus{
		ExternalID: reply.Data.TransactionID,
		Status:     reply.Data.Status,
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &Error{Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ci", c.cfg.ClientID)
	req.Header.Set("cs", c.cfg.ClientSecret)

	log.Printf("[PROCESSOR] %s %s", method, path)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[PROCESSOR] %s %s failed: %v", method, path, err)
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Err: fmt.Errorf("reading processor response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Printf("[PROCESSOR] %s %s returned %d: %s", method, path, resp.StatusCode, data)
		return &Error{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Err: fmt.Errorf("decoding processor response: %w", err)}
		}
	}
	return nil
}
