package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// Record is one audit trail event. The trail is observability only and
// never authoritative for balances.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	Payload   any       `json:"payload"`
}

// Recorder receives one event per state-changing operation.
type Recorder interface {
	Record(ctx context.Context, userID, action string, payload any)
}

// Logger persists audit events to the audit_logs table and mirrors them
// to the process log. Persistence failures are logged but never fail
// the operation being audited.
type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Record(ctx context.Context, userID, action string, payload any) {
	rec := Record{
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    userID,
		Payload:   payload,
	}

	data, err := json.Marshal(rec.Payload)
	if err != nil {
		data = []byte("{}")
	}

	if l.db != nil {
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO audit_logs (user_id, action, payload, created_at) VALUES ($1, $2, $3, $4)`,
			userID, action, string(data), rec.Timestamp); err != nil {
			log.Printf("[AUDIT] failed to persist %s for user %s: %v", action, userID, err)
		}
	}

	line, _ := json.Marshal(rec)
	log.Printf("AUDIT: %s", line)
}
