package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brazapay/backend/internal/audit"
)

// CredentialsService issues the ci/cs API credential pairs merchants
// use to call the gateway programmatically. The secret is shown once
// at generation time; only its argon2 hash is stored.
type CredentialsService struct {
	db    *sql.DB
	audit audit.Recorder
}

func NewCredentialsService(db *sql.DB, recorder audit.Recorder) *CredentialsService {
	return &CredentialsService{db: db, audit: recorder}
}

func generateClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "ci_" + hex.EncodeToString(b), nil
}

func generateClientSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "cs_" + hex.EncodeToString(b), nil
}

// HandleGenerate creates the caller's API credential pair.
// @Summary Generate API credentials
// @Description Generate a client id and secret pair. The secret is returned only once.
// @Tags credentials
// @Produce json
// @Security BearerAuth
// @Success 201 {object} map[string]string "Credentials generated"
// @Failure 400 {object} ErrorResponse "Credentials already exist"
// @Router /credentials [post]
func (s *CredentialsService) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var exists bool
	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM api_credentials WHERE user_id = $1)", userID).Scan(&exists); err != nil {
		log.Printf("[CREDENTIALS] existence check failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to generate credentials", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "Credentials already exist, revoke them first", http.StatusBadRequest, nil)
		return
	}

	clientID, err := generateClientID()
	if err != nil {
		SendErrorResponse(w, "Failed to generate credentials", http.StatusInternalServerError, nil)
		return
	}
	clientSecret, err := generateClientSecret()
	if err != nil {
		SendErrorResponse(w, "Failed to generate credentials", http.StatusInternalServerError, nil)
		return
	}

	secretHash, err := HashPassword(clientSecret)
	if err != nil {
		log.Printf("[CREDENTIALS] secret hashing failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to generate credentials", http.StatusInternalServerError, nil)
		return
	}

	_, err = s.db.Exec("INSERT INTO api_credentials (id, user_id, client_id, client_secret_hash) VALUES ($1, $2, $3, $4)",
		uuid.NewString(), userID, clientID, secretHash)
	if err != nil {
		log.Printf("[CREDENTIALS] persist failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to generate credentials", http.StatusInternalServerError, nil)
		return
	}

	s.audit.Record(r.Context(), userID, "API_CREDENTIALS_GENERATED", map[string]any{
		"clientId": clientID,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"clientId":     clientID,
		"clientSecret": clientSecret,
		"warning":      "Store the client secret now, it will not be shown again",
	})
}

// HandleGet returns the caller's credential metadata.
// @Summary Get API credentials
// @Description Get the client id and creation time. The secret is never returned.
// @Tags credentials
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Credential metadata"
// @Failure 404 {object} ErrorResponse "No credentials"
// @Router /credentials [get]
func (s *CredentialsService) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var clientID string
	var createdAt time.Time
	err := s.db.QueryRow("SELECT client_id, created_at FROM api_credentials WHERE user_id = $1", userID).
		Scan(&clientID, &createdAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "No credentials found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CREDENTIALS] fetch failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch credentials", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"clientId":  clientID,
		"createdAt": createdAt.Format(time.RFC3339),
	})
}

// HandleRevoke deletes the caller's credential pair.
// @Summary Revoke API credentials
// @Tags credentials
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Credentials revoked"
// @Failure 404 {object} ErrorResponse "No credentials"
// @Router /credentials [delete]
func (s *CredentialsService) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	res, err := s.db.Exec("DELETE FROM api_credentials WHERE user_id = $1", userID)
	if err != nil {
		log.Printf("[CREDENTIALS] revoke failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to revoke credentials", http.StatusInternalServerError, nil)
		return
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		SendErrorResponse(w, "No credentials found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Credentials revoked"})
}
