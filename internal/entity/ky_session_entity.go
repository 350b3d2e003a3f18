package entity

import (
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

type KySession struct {
	Id               string
	ClientId         string
	WorkerName       string
	SiteName         string
	Weather          string
	Temperature      *float64
	ProcessPhase     string
	HealthCondition  string
	WorkItems        []store.WorkItem
	ActionGoal       string
	NearMissReported bool
	NearMissNote     string
	Transcript       []store.ChatMessage
	WorkStartTime    time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	UpdatedAt        *time.Time
}
