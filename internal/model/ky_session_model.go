package model

import (
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"gorm.io/datatypes"
)

// KySession is a completed KY session. Live sessions never reach the
// database.
type KySession struct {
	Id               string                                 `gorm:"type:uuid;primaryKey"`
	ClientId         string                                 `gorm:"type:varchar(100);not null;index"`
	WorkerName       string                                 `gorm:"type:varchar(100);not null"`
	SiteName         string                                 `gorm:"type:varchar(200);not null;index:idx_ky_sessions_site_completed,priority:1"`
	Weather          string                                 `gorm:"type:varchar(50)"`
	Temperature      *float64                               `gorm:"type:numeric(4,1)"`
	ProcessPhase     string                                 `gorm:"type:varchar(100)"`
	HealthCondition  string                                 `gorm:"type:varchar(100)"`
	WorkItems        datatypes.JSONSlice[store.WorkItem]    `gorm:"type:jsonb;not null"`
	ActionGoal       string                                 `gorm:"type:text"`
	NearMissReported bool                                   `gorm:"not null;default:false;index"`
	NearMissNote     string                                 `gorm:"type:text"`
	Transcript       datatypes.JSONSlice[store.ChatMessage] `gorm:"type:jsonb"`
	WorkStartTime    time.Time
	StartedAt        time.Time `gorm:"not null"`
	CompletedAt      time.Time `gorm:"not null;index:idx_ky_sessions_site_completed,priority:2,sort:desc"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (KySession) TableName() string {
	return "ky_sessions"
}
