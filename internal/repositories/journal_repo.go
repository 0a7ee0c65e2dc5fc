package repositories

import (
	"context"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JournalRepo struct {
	pool *pgxpool.Pool
}

func NewJournalRepo(pool *pgxpool.Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

func (r *JournalRepo) Record(ctx context.Context, e models.JournalEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO desk_journal (id, deal_id, actor_id, action, ok, error, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.DealID, e.ActorID, e.Action, e.OK, e.Error, e.Meta, e.CreatedAt)
	return err
}

func (r *JournalRepo) ListByDeal(ctx context.Context, dealID int64, limit, offset int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, actor_id, action, ok, error, meta, created_at
		FROM desk_journal WHERE deal_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, dealID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.DealID, &e.ActorID, &e.Action, &e.OK, &e.Error, &e.Meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
