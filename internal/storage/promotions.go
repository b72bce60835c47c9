package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"promobot/internal/apperr"
	"promobot/internal/model"
)

const promotionColumns = `id, title, description, start_date, end_date, status,
	publication_date, city_id, category_ids, image_url, link, is_deleted`

// PromotionsRepo reads promotions and performs the publication transition.
// Promotion rows are owned by the external CRUD API.
type PromotionsRepo struct {
	db *sqlx.DB
}

// NewPromotionsRepo wires a promotions repository onto the shared pool.
func NewPromotionsRepo(db *sqlx.DB) *PromotionsRepo {
	return &PromotionsRepo{db: db}
}

// GetByID loads one promotion regardless of status.
func (r *PromotionsRepo) GetByID(ctx context.Context, id int64) (*model.Promotion, error) {
	var p model.Promotion
	err := r.db.GetContext(ctx, &p,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("promotion", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return &p, nil
}

// FindDue returns pending, non-deleted promotions whose publication date has
// passed. The scheduler iterates this set exactly once per tick.
func (r *PromotionsRepo) FindDue(ctx context.Context, now time.Time) ([]model.Promotion, error) {
	var promos []model.Promotion
	err := r.db.SelectContext(ctx, &promos,
		`SELECT `+promotionColumns+`
		   FROM promotions
		  WHERE status = $1
		    AND NOT is_deleted
		    AND publication_date IS NOT NULL
		    AND publication_date <= $2
		  ORDER BY publication_date, id`,
		model.PromotionPending, now)
	if err != nil {
		return nil, fmt.Errorf("find due promotions: %w", err)
	}
	return promos, nil
}

// UpdateStatus transitions a promotion to the given status.
func (r *PromotionsRepo) UpdateStatus(ctx context.Context, id int64, status model.PromotionStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE promotions SET status = $2 WHERE id = $1 AND NOT is_deleted`,
		id, status)
	if err != nil {
		return fmt.Errorf("update promotion status: %w", err)
	}
	return requireRow(res, "promotion", id)
}

// FindApprovedFor pages through approved promotions matching a user's city
// and category preferences for the /promotions view.
func (r *PromotionsRepo) FindApprovedFor(ctx context.Context, cityID int64, categoryIDs []int64, limit, offset int) ([]model.Promotion, error) {
	var promos []model.Promotion
	err := r.db.SelectContext(ctx, &promos,
		`SELECT `+promotionColumns+`
		   FROM promotions
		  WHERE status = $1
		    AND NOT is_deleted
		    AND (city_id IS NULL OR city_id = $2)
		    AND category_ids && $3
		  ORDER BY publication_date DESC NULLS LAST, id DESC
		  LIMIT $4 OFFSET $5`,
		model.PromotionApproved, cityID, pq.Int64Array(categoryIDs), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find approved promotions: %w", err)
	}
	return promos, nil
}
