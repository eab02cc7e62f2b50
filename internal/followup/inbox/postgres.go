package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

const (
	opCreate      = "inbox.Create"
	opList        = "inbox.List"
	opCountUnread = "inbox.CountUnread"
	opMarkRead    = "inbox.MarkRead"
	opMarkAllRead = "inbox.MarkAllRead"
	opSince       = "inbox.Since"
	opLatestSeq   = "inbox.LatestSeq"
)

const notificationColumns = `id, seq, company_id, reminder_id, lead_id, kind, recipient, title, content, is_read, read_at, created_at`

// PostgresRepository stores notifications in followup_notifications.
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresRepository {
	if log == nil {
		log = logger.Discard()
	}
	return &PostgresRepository{pool: pool, log: log}
}

func (r *PostgresRepository) fail(op, msg string, err error) error {
	r.log.DatabaseError(op, err)
	return apperr.Internal(msg).WithOp(op)
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	var kind string
	err := row.Scan(&n.ID, &n.Seq, &n.CompanyID, &n.ReminderID, &n.LeadID, &kind,
		&n.Recipient, &n.Title, &n.Content, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	n.Kind = domain.Method(kind)
	return n, err
}

func (r *PostgresRepository) Create(ctx context.Context, n Notification) (Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO followup_notifications (id, company_id, reminder_id, lead_id, kind, recipient, title, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (reminder_id, kind) DO NOTHING
		RETURNING `+notificationColumns,
		n.ID, n.CompanyID, n.ReminderID, n.LeadID, string(n.Kind), n.Recipient, n.Title, n.Content, n.CreatedAt)
	created, err := scanNotification(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, r.fail(opCreate, "failed to create notification", err)
	}

	existing, err := scanNotification(r.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM followup_notifications
		WHERE reminder_id = $1 AND kind = $2`, n.ReminderID, string(n.Kind)))
	if err != nil {
		return Notification{}, r.fail(opCreate, "failed to load existing notification", err)
	}
	return existing, nil
}

func (r *PostgresRepository) List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Notification, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM followup_notifications
		WHERE company_id = $1
		  AND ($2 = '' OR recipient = $2)
		  AND (NOT $3 OR is_read = false)`,
		companyID, filter.Recipient, filter.UnreadOnly).Scan(&total)
	if err != nil {
		return nil, 0, r.fail(opList, "failed to count notifications", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM followup_notifications
		WHERE company_id = $1
		  AND ($2 = '' OR recipient = $2)
		  AND (NOT $3 OR is_read = false)
		ORDER BY seq DESC
		LIMIT $4 OFFSET $5`,
		companyID, filter.Recipient, filter.UnreadOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, r.fail(opList, "failed to list notifications", err)
	}
	defer rows.Close()

	items := make([]Notification, 0, filter.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, r.fail(opList, "failed to scan notification", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.fail(opList, "failed to iterate notifications", err)
	}
	return items, total, nil
}

func (r *PostgresRepository) CountUnread(ctx context.Context, companyID uuid.UUID, recipient string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM followup_notifications
		WHERE company_id = $1 AND ($2 = '' OR recipient = $2) AND is_read = false`,
		companyID, recipient).Scan(&count)
	if err != nil {
		return 0, r.fail(opCountUnread, "failed to count unread notifications", err)
	}
	return count, nil
}

func (r *PostgresRepository) MarkRead(ctx context.Context, companyID, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE followup_notifications
		SET is_read = true, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND company_id = $2`, id, companyID, at)
	if err != nil {
		return r.fail(opMarkRead, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, companyID uuid.UUID, recipient string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE followup_notifications
		SET is_read = true, read_at = $3
		WHERE company_id = $1 AND ($2 = '' OR recipient = $2) AND is_read = false`,
		companyID, recipient, at)
	if err != nil {
		return r.fail(opMarkAllRead, "failed to mark notifications read", err)
	}
	return nil
}

func (r *PostgresRepository) Since(ctx context.Context, companyID uuid.UUID, afterSeq int64, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM followup_notifications
		WHERE company_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`, companyID, afterSeq, limit)
	if err != nil {
		return nil, r.fail(opSince, "failed to read new notifications", err)
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, r.fail(opSince, "failed to scan notification", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(opSince, "failed to iterate notifications", err)
	}
	return items, nil
}

func (r *PostgresRepository) LatestSeq(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM followup_notifications WHERE company_id = $1`,
		companyID).Scan(&seq)
	if err != nil {
		return 0, r.fail(opLatestSeq, "failed to read notification cursor", err)
	}
	return seq, nil
}
