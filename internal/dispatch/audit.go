package dispatch

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/reviewstream/pkg/models"
)

// AuditRepo keeps one durable row per accepted request. It is strictly
// best-effort bookkeeping: audit failures are logged and swallowed, never
// surfaced into the request path.
type AuditRepo struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS review_requests (
	request_id   TEXT PRIMARY KEY,
	provider     TEXT NOT NULL,
	repository   TEXT NOT NULL,
	change_request INTEGER NOT NULL,
	mode         TEXT NOT NULL,
	trigger_source TEXT,
	state        TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

// NewAuditRepo opens the audit table over the shared database.
func NewAuditRepo(databaseURL string) (*AuditRepo, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &AuditRepo{db: db}, nil
}

// Close releases the database handle.
func (r *AuditRepo) Close() {
	if r == nil || r.db == nil {
		return
	}
	r.db.Close()
}

// Record inserts the accepted request.
func (r *AuditRepo) Record(ctx context.Context, req models.AsyncRequest) {
	if r == nil || r.db == nil {
		return
	}
	const query = `
		INSERT INTO review_requests
			(request_id, provider, repository, change_request, mode, trigger_source, state, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		req.RequestID, string(req.Provider), req.Repository.DisplayName(), req.ChangeRequest.Number,
		string(req.Mode), req.TriggerSource, string(models.StatePending), req.SubmittedAt, time.Now())
	if err != nil {
		log.Warn().Str("request_id", req.RequestID).Err(err).Msg("audit insert failed")
	}
}

// MarkState updates the request's lifecycle state.
func (r *AuditRepo) MarkState(ctx context.Context, requestID string, state models.RequestState) {
	if r == nil || r.db == nil {
		return
	}
	const query = `UPDATE review_requests SET state = $2, updated_at = $3 WHERE request_id = $1`
	if _, err := r.db.ExecContext(ctx, query, requestID, string(state), time.Now()); err != nil {
		log.Warn().Str("request_id", requestID).Err(err).Msg("audit update failed")
	}
}
