package events

import (
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

// Event is anything published on the event bus.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const KySessionCompleted = "KY_SESSION_COMPLETED"

// NewKySessionCompleted summarises a finished session for downstream
// consumers. The full transcript is not included.
func NewKySessionCompleted(session store.Session) BaseEvent {
	occurredAt := time.Now()
	if session.CompletedAt != nil {
		occurredAt = *session.CompletedAt
	}

	hazards := make([]string, 0, len(session.WorkItems))
	maxRisk := 0
	for _, item := range session.WorkItems {
		hazards = append(hazards, item.HazardDescription)
		if item.RiskLevel > maxRisk {
			maxRisk = item.RiskLevel
		}
	}

	return BaseEvent{
		Type: KySessionCompleted,
		Data: map[string]interface{}{
			"session_id":         session.ID,
			"client_id":          session.ClientID,
			"worker_name":        session.WorkerName,
			"site_name":          session.SiteName,
			"work_item_count":    len(session.WorkItems),
			"hazards":            hazards,
			"max_risk_level":     maxRisk,
			"action_goal":        session.ActionGoal,
			"near_miss_reported": session.NearMissReported,
			"completed_at":       occurredAt.Format(time.RFC3339),
		},
		OccurredAt: occurredAt,
	}
}
