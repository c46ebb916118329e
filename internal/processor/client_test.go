package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brazapay/backend/internal/config"
)

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(&config.ProcessorConfig{
		BaseURL:      url,
		ClientID:     "ci_test",
		ClientSecret: "cs_test",
		CallbackURL:  "http://localhost:8080/webhook/pix",
		Timeout:      5 * time.Second,
	})
}

func TestHTTPClient_CreateTransaction(t *testing.T) {
	t.Run("sends credentials and payload, decodes instrument", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/transactions/create", r.URL.Path)
			assert.Equal(t, "ci_test", r.Header.Get("ci"))
			assert.Equal(t, "cs_test", r.Header.Get("cs"))

			var payload map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, float64(10000), payload["amount"])
			assert.Equal(t, "tx-internal-1", payload["transactionId"])
			assert.Equal(t, "http://localhost:8080/webhook/pix", payload["projectWebhook"])

			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"transactionId": "ext-42",
					"qrcodeUrl":     "https://cdn.example/qr.png",
					"copyPaste":     "00020126...",
				},
			})
		}))
		defer server.Close()

		resp, err := newTestClient(server.URL).CreateTransaction(context.Background(), CreateTransactionRequest{
			AmountCents:   10000,
			PayerName:     "Maria Silva",
			PayerDocument: "123.456.789-00",
			InternalID:    "tx-internal-1",
			Description:   "PIX deposit",
		})
		assert.NoError(t, err)
		assert.Equal(t, "ext-42", resp.ExternalID)
		assert.Equal(t, "https://cdn.example/qr.png", resp.QRCodeURL)
		assert.Equal(t, "00020126...", resp.CopyPaste)
	})

	t.Run("surfaces upstream error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"invalid payer document"}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).CreateTransaction(context.Background(), CreateTransactionRequest{
			AmountCents: 10000,
			InternalID:  "tx-internal-1",
		})
		assert.Error(t, err)

		var procErr *Error
		assert.ErrorAs(t, err, &procErr)
		assert.Equal(t, http.StatusUnprocessableEntity, procErr.StatusCode)
		assert.Contains(t, procErr.Body, "invalid payer document")
	})

	t.Run("transport failure becomes a processor error", func(t *testing.T) {
		client := newTestClient("http://127.0.0.1:1")

		_, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{
			AmountCents: 500,
			InternalID:  "tx-internal-2",
		})
		var procErr *Error
		assert.ErrorAs(t, err, &procErr)
		assert.NotNil(t, procErr.Err)
	})
}

func TestHTTPClient_CreatePayout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/withdraw", r.URL.Path)

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(3000), payload["amount"])
		assert.Equal(t, "maria@example.com", payload["pixKey"])
		assert.Equal(t, "EMAIL", payload["pixKeyType"])

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"transactionId": "ext-payout-7"},
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).CreatePayout(context.Background(), CreatePayoutRequest{
		AmountCents: 3000,
		PixKey:      "maria@example.com",
		PixKeyType:  "EMAIL",
		Description: "PIX withdrawal",
	})
	assert.NoError(t, err)
	assert.Equal(t, "ext-payout-7", resp.ExternalID)
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/transactions/ext-42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"transactionId": "ext-42", "status": "approved"},
		})
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).GetTransaction(context.Background(), "ext-42")
	assert.NoError(t, err)
	assert.Equal(t, "approved", status.Status)
}
