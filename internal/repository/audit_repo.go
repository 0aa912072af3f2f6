package repository

import (
	"context"
	"encoding/json"

	"crazygift/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// операции с журналом аудита
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	_, err := r.db.Exec(ctx, insertAudit, auditArgs(entry)...)
	return err
}

// CreateWithTx пишет запись вместе с изменением, которое она описывает
func (r *AuditRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error {
	_, err := tx.Exec(ctx, insertAudit, auditArgs(entry)...)
	return err
}

const insertAudit = `
	INSERT INTO audit_logs (user_id, action, category, details, ip, user_agent)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
`

func auditArgs(entry *domain.AuditLog) []any {
	details, err := json.Marshal(entry.Details)
	if err != nil || entry.Details == nil {
		details = []byte("{}")
	}
	return []any{entry.UserID, entry.Action, entry.Category, details, entry.IP, entry.UserAgent}
}

func (r *AuditRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, category, details, COALESCE(ip, ''), COALESCE(user_agent, ''), created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

func (r *AuditRepository) GetRecent(ctx context.Context, category string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, category, details, COALESCE(ip, ''), COALESCE(user_agent, ''), created_at
		FROM audit_logs
		WHERE $1 = '' OR category = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

func scanAuditLogs(rows pgx.Rows) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Category, &details,
			&entry.IP, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			entry.Details = make(map[string]interface{})
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}
