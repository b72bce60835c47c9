package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"promobot/internal/apperr"
	"promobot/internal/model"
)

// CatalogRepo reads the city and category reference data.
type CatalogRepo struct {
	db *sqlx.DB
}

// NewCatalogRepo wires a catalog repository onto the shared pool.
func NewCatalogRepo(db *sqlx.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// ListCities returns all cities ordered by name.
func (r *CatalogRepo) ListCities(ctx context.Context) ([]model.City, error) {
	var cities []model.City
	if err := r.db.SelectContext(ctx, &cities,
		`SELECT id, name FROM cities ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}

// GetCity loads one city by id.
func (r *CatalogRepo) GetCity(ctx context.Context, id int64) (*model.City, error) {
	var c model.City
	err := r.db.GetContext(ctx, &c, `SELECT id, name FROM cities WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("city", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get city: %w", err)
	}
	return &c, nil
}

// ListCategories returns all categories ordered by name. The catalog is
// small; pagination happens in the engine.
func (r *CatalogRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	var cats []model.Category
	if err := r.db.SelectContext(ctx, &cats,
		`SELECT id, name FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// GetCategories loads the named categories preserving catalog order.
func (r *CatalogRepo) GetCategories(ctx context.Context, ids []int64) ([]model.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, name FROM categories WHERE id IN (?) ORDER BY name`, ids)
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}
	var cats []model.Category
	if err := r.db.SelectContext(ctx, &cats, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}
	return cats, nil
}
