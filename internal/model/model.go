package model

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PromotionStatus is the moderation status of a promotion.
type PromotionStatus string

const (
	// PromotionPending awaits its publication date.
	PromotionPending PromotionStatus = "PENDING"
	// PromotionApproved is published and eligible for notification.
	PromotionApproved PromotionStatus = "APPROVED"
	// PromotionRejected was declined by moderation.
	PromotionRejected PromotionStatus = "REJECTED"
)

// Promotion is a promotional campaign created by the external CRUD API.
// This core only reads promotions and performs the PENDING -> APPROVED
// transition once the publication date is due.
type Promotion struct {
	ID              int64           `db:"id"`
	Title           string          `db:"title"`
	Description     string          `db:"description"`
	StartDate       time.Time       `db:"start_date"`
	EndDate         time.Time       `db:"end_date"`
	Status          PromotionStatus `db:"status"`
	PublicationDate sql.NullTime    `db:"publication_date"`
	CityID          sql.NullInt64   `db:"city_id"`
	CategoryIDs     pq.Int64Array   `db:"category_ids"`
	ImageURL        sql.NullString  `db:"image_url"`
	Link            sql.NullString  `db:"link"`
	IsDeleted       bool            `db:"is_deleted"`
}

// User is a subscriber profile keyed by the external Telegram chat id.
type User struct {
	ID                   int64         `db:"id"`
	ChatID               sql.NullInt64 `db:"chat_id"`
	CityID               sql.NullInt64 `db:"city_id"`
	CategoryIDs          pq.Int64Array `db:"category_ids"`
	NotificationsEnabled bool          `db:"notifications_enabled"`
	CreatedAt            time.Time     `db:"created_at"`
}

// HasCity reports whether the user has chosen a city.
func (u *User) HasCity() bool { return u.CityID.Valid }

// City is a catalog entry users subscribe to.
type City struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Category is a catalog entry promotions are targeted by.
type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}
