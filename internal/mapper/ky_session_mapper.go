package mapper

import (
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/model"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"gorm.io/datatypes"
)

type KySessionMapper struct{}

func NewKySessionMapper() *KySessionMapper {
	return &KySessionMapper{}
}

func (m *KySessionMapper) ToEntity(s *model.KySession) *entity.KySession {
	if s == nil {
		return nil
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.KySession{
		Id:               s.Id,
		ClientId:         s.ClientId,
		WorkerName:       s.WorkerName,
		SiteName:         s.SiteName,
		Weather:          s.Weather,
		Temperature:      s.Temperature,
		ProcessPhase:     s.ProcessPhase,
		HealthCondition:  s.HealthCondition,
		WorkItems:        []store.WorkItem(s.WorkItems),
		ActionGoal:       s.ActionGoal,
		NearMissReported: s.NearMissReported,
		NearMissNote:     s.NearMissNote,
		Transcript:       []store.ChatMessage(s.Transcript),
		WorkStartTime:    s.WorkStartTime,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		UpdatedAt:        updatedAt,
	}
}

func (m *KySessionMapper) ToModel(s *entity.KySession) *model.KySession {
	if s == nil {
		return nil
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	workItems := s.WorkItems
	if workItems == nil {
		workItems = []store.WorkItem{}
	}

	return &model.KySession{
		Id:               s.Id,
		ClientId:         s.ClientId,
		WorkerName:       s.WorkerName,
		SiteName:         s.SiteName,
		Weather:          s.Weather,
		Temperature:      s.Temperature,
		ProcessPhase:     s.ProcessPhase,
		HealthCondition:  s.HealthCondition,
		WorkItems:        datatypes.JSONSlice[store.WorkItem](workItems),
		ActionGoal:       s.ActionGoal,
		NearMissReported: s.NearMissReported,
		NearMissNote:     s.NearMissNote,
		Transcript:       datatypes.JSONSlice[store.ChatMessage](s.Transcript),
		WorkStartTime:    s.WorkStartTime,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		UpdatedAt:        updatedAt,
	}
}

// FromConversation snapshots a completed conversation for storage.
func (m *KySessionMapper) FromConversation(conv store.Conversation) *entity.KySession {
	snap := conv.Clone()
	s := snap.Session

	completedAt := time.Now()
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}

	return &entity.KySession{
		Id:               s.ID,
		ClientId:         s.ClientID,
		WorkerName:       s.WorkerName,
		SiteName:         s.SiteName,
		Weather:          s.Weather,
		Temperature:      s.Temperature,
		ProcessPhase:     s.ProcessPhase,
		HealthCondition:  s.HealthCondition,
		WorkItems:        s.WorkItems,
		ActionGoal:       s.ActionGoal,
		NearMissReported: s.NearMissReported,
		NearMissNote:     s.NearMissNote,
		Transcript:       snap.Messages,
		WorkStartTime:    s.WorkStartTime,
		StartedAt:        s.CreatedAt,
		CompletedAt:      completedAt,
	}
}

// ToSession rebuilds the domain record. The transcript is not part of it.
func (m *KySessionMapper) ToSession(e *entity.KySession) store.Session {
	completedAt := e.CompletedAt
	return store.Session{
		ID:               e.Id,
		ClientID:         e.ClientId,
		WorkerName:       e.WorkerName,
		SiteName:         e.SiteName,
		Weather:          e.Weather,
		Temperature:      e.Temperature,
		ProcessPhase:     e.ProcessPhase,
		HealthCondition:  e.HealthCondition,
		WorkItems:        e.WorkItems,
		ActionGoal:       e.ActionGoal,
		NearMissReported: e.NearMissReported,
		NearMissNote:     e.NearMissNote,
		WorkStartTime:    e.WorkStartTime,
		CreatedAt:        e.StartedAt,
		CompletedAt:      &completedAt,
	}.Clone()
}
