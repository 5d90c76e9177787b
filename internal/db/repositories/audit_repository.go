// audit_repository.go implements AuditRepository, providing inserts for audit
// rows (inside and outside transactions), the filtered query API, and the
// retention queries used by the archiver.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// AuditRepository handles database operations for audit logs
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilter narrows List results. Zero values mean "no filter".
type AuditFilter struct {
	UserID     string
	Username   string
	Action     string
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

const insertAuditSQL = `
	INSERT INTO audit_logs (id, user_id, username, action, entity_type, entity_id, changes, ip_address, user_agent, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func auditInsertArgs(entry *models.AuditLog) ([]interface{}, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var changes []byte
	if entry.Changes != nil {
		var err error
		changes, err = json.Marshal(entry.Changes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit changes: %w", err)
		}
	}

	return []interface{}{
		entry.ID,
		entry.UserID,
		entry.Username,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		changes,
		entry.IPAddress,
		entry.UserAgent,
		entry.Timestamp,
	}, nil
}

// InsertTx writes an audit row inside an existing transaction. Used by the
// change-capture hook so the audit row commits with the business change.
func (r *AuditRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, entry *models.AuditLog) error {
	args, err := auditInsertArgs(entry)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertAuditSQL, args...); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Insert writes an audit row on its own connection, outside any business
// transaction. Used for ACCESS rows after the response is sent.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	args, err := auditInsertArgs(entry)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, insertAuditSQL, args...); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// List retrieves audit rows matching the filter, newest first, plus the total
// count for pagination.
func (r *AuditRepository) List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, int, error) {
	whereClause := "WHERE 1=1"
	var args []interface{}
	argCount := 0

	if filter.UserID != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, filter.UserID)
	}
	if filter.Username != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND username = $%d", argCount)
		args = append(args, filter.Username)
	}
	if filter.Action != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, filter.EntityID)
	}
	if filter.From != nil {
		argCount++
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		argCount++
		whereClause += fmt.Sprintf(" AND timestamp < $%d", argCount)
		args = append(args, *filter.To)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, username, action, entity_type, entity_id, changes, ip_address, user_agent, timestamp
		FROM audit_logs
		%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argCount+1, argCount+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return entries, total, nil
}

// SelectOlderThanTx retrieves up to limit rows with a timestamp before the
// cutoff, oldest first, inside the archiver's transaction. FOR UPDATE keeps a
// concurrent archiver run from exporting the same rows twice.
func (r *AuditRepository) SelectOlderThanTx(ctx context.Context, tx *sqlx.Tx, cutoff time.Time, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, username, action, entity_type, entity_id, changes, ip_address, user_agent, timestamp
		FROM audit_logs
		WHERE timestamp < $1
		ORDER BY timestamp
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteByIDsTx removes the given rows inside the archiver's transaction, so
// deletion only commits once the export succeeded.
func (r *AuditRepository) DeleteByIDsTx(ctx context.Context, tx *sqlx.Tx, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`DELETE FROM audit_logs WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}
	query = tx.Rebind(query)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived audit logs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditLog(rows rowScanner) (*models.AuditLog, error) {
	entry := &models.AuditLog{}
	var changes []byte
	err := rows.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Username,
		&entry.Action,
		&entry.EntityType,
		&entry.EntityID,
		&changes,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit changes: %w", err)
		}
	}
	return entry, nil
}
