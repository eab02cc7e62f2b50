package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/followup/domain"
)

// Repository stores each collection as one JSONB row per company and kind.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed store.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func loadKind[T any](ctx context.Context, tx pgx.Tx, companyID uuid.UUID, kind Kind, lock bool) ([]T, error) {
	query := `SELECT payload FROM followup_collections WHERE company_id = $1 AND kind = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var raw []byte
	err := tx.QueryRow(ctx, query, companyID, string(kind)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return items, nil
}

func storeKind[T any](ctx context.Context, tx pgx.Tx, companyID uuid.UUID, kind Kind, items []T) error {
	if items == nil {
		items = []T{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO followup_collections (company_id, kind, payload, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (company_id, kind) DO UPDATE
		SET payload = EXCLUDED.payload,
		    version = followup_collections.version + 1,
		    updated_at = now()
	`, companyID, string(kind), payload)
	if err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

// lockCompany serialises writers of one company for the rest of tx, also
// when none of its rows exist yet.
func lockCompany(ctx context.Context, tx pgx.Tx, companyID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, companyID.String())
	if err != nil {
		return fmt.Errorf("lock company: %w", err)
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func readOnly[T any](ctx context.Context, r *Repository, companyID uuid.UUID, kind Kind) ([]T, error) {
	if companyID == uuid.Nil {
		return nil, ErrNoCompany
	}
	var items []T
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		items, err = loadKind[T](ctx, tx, companyID, kind, false)
		return err
	})
	return items, err
}

func replace[T any](ctx context.Context, r *Repository, companyID uuid.UUID, kind Kind, items []T) error {
	if companyID == uuid.Nil {
		return ErrNoCompany
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockCompany(ctx, tx, companyID); err != nil {
			return err
		}
		return storeKind(ctx, tx, companyID, kind, items)
	})
}

func (r *Repository) Leads(ctx context.Context, companyID uuid.UUID) ([]domain.Lead, error) {
	return readOnly[domain.Lead](ctx, r, companyID, KindLeads)
}

func (r *Repository) SetLeads(ctx context.Context, companyID uuid.UUID, leads []domain.Lead) error {
	return replace(ctx, r, companyID, KindLeads, leads)
}

func (r *Repository) Rules(ctx context.Context, companyID uuid.UUID) ([]domain.FollowUpRule, error) {
	return readOnly[domain.FollowUpRule](ctx, r, companyID, KindRules)
}

func (r *Repository) SetRules(ctx context.Context, companyID uuid.UUID, rules []domain.FollowUpRule) error {
	return replace(ctx, r, companyID, KindRules, rules)
}

func (r *Repository) Reminders(ctx context.Context, companyID uuid.UUID) ([]domain.Reminder, error) {
	return readOnly[domain.Reminder](ctx, r, companyID, KindReminders)
}

func (r *Repository) SetReminders(ctx context.Context, companyID uuid.UUID, reminders []domain.Reminder) error {
	return replace(ctx, r, companyID, KindReminders, reminders)
}

func loadAll(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, lock bool) (Collections, error) {
	var c Collections
	var err error
	if c.Leads, err = loadKind[domain.Lead](ctx, tx, companyID, KindLeads, lock); err != nil {
		return c, err
	}
	if c.Rules, err = loadKind[domain.FollowUpRule](ctx, tx, companyID, KindRules, lock); err != nil {
		return c, err
	}
	if c.Reminders, err = loadKind[domain.Reminder](ctx, tx, companyID, KindReminders, lock); err != nil {
		return c, err
	}
	return c, nil
}

// Snapshot reads all collections of a company in one transaction.
func (r *Repository) Snapshot(ctx context.Context, companyID uuid.UUID) (Collections, error) {
	if companyID == uuid.Nil {
		return Collections{}, ErrNoCompany
	}
	var c Collections
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		c, err = loadAll(ctx, tx, companyID, false)
		return err
	})
	return c, err
}

// Update locks the company, applies fn and writes every collection back in
// the same transaction.
func (r *Repository) Update(ctx context.Context, companyID uuid.UUID, fn func(*Collections) error) error {
	if companyID == uuid.Nil {
		return ErrNoCompany
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockCompany(ctx, tx, companyID); err != nil {
			return err
		}
		c, err := loadAll(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		if err := storeKind(ctx, tx, companyID, KindLeads, c.Leads); err != nil {
			return err
		}
		if err := storeKind(ctx, tx, companyID, KindRules, c.Rules); err != nil {
			return err
		}
		return storeKind(ctx, tx, companyID, KindReminders, c.Reminders)
	})
}

// Companies lists companies with at least one stored collection.
func (r *Repository) Companies(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM followup_collections ORDER BY company_id`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

var _ Store = (*Repository)(nil)
