package specification

import (
	"time"

	"gorm.io/gorm"
)

type BySiteName struct {
	SiteName string
}

func (s BySiteName) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("site_name = ?", s.SiteName)
}

type ByClientID struct {
	ClientID string
}

func (s ByClientID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("client_id = ?", s.ClientID)
}

// CompletedBetween filters on completed_at in [From, To). Zero bounds are open.
type CompletedBetween struct {
	From time.Time
	To   time.Time
}

func (s CompletedBetween) Apply(db *gorm.DB) *gorm.DB {
	if !s.From.IsZero() {
		db = db.Where("completed_at >= ?", s.From)
	}
	if !s.To.IsZero() {
		db = db.Where("completed_at < ?", s.To)
	}
	return db
}

type ExcludeID struct {
	ID string
}

func (s ExcludeID) Apply(db *gorm.DB) *gorm.DB {
	if s.ID == "" {
		return db
	}
	return db.Where("id <> ?", s.ID)
}

type NearMissReported struct{}

func (s NearMissReported) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("near_miss_reported = ? AND near_miss_note <> ''", true)
}

// NewestFirst orders by completion time, newest first.
type NewestFirst struct{}

func (s NewestFirst) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("completed_at DESC").Order("id DESC")
}
