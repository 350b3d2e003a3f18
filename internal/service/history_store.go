package service

import (
	"context"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/specification"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/unitofwork"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/hazardctx"
)

// HistoryStore serves the hazard-context views from completed sessions.
type HistoryStore struct {
	uowFactory unitofwork.RepositoryFactory
	recentDays int
	now        func() time.Time
}

var _ hazardctx.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore splits "recent" and "past" at recentDays.
func NewHistoryStore(uowFactory unitofwork.RepositoryFactory, recentDays int) *HistoryStore {
	if recentDays <= 0 {
		recentDays = hazardctx.DefaultOptions().RecentDays
	}
	return &HistoryStore{
		uowFactory: uowFactory,
		recentDays: recentDays,
		now:        time.Now,
	}
}

const recentScanLimit = 50

func (h *HistoryStore) GetRecentRisks(ctx context.Context, days int, filter hazardctx.Filter) ([]hazardctx.RiskRecord, error) {
	if filter.SiteName == "" {
		return nil, nil
	}
	sessions, err := h.find(ctx,
		specification.BySiteName{SiteName: filter.SiteName},
		specification.CompletedBetween{From: h.now().AddDate(0, 0, -days)},
		specification.ExcludeID{ID: filter.ExcludeSessionID},
		specification.NewestFirst{},
		specification.Pagination{Limit: recentScanLimit},
	)
	if err != nil {
		return nil, err
	}
	return flattenRisks(sessions), nil
}

// GetPastRisks scans a few sessions per requested record so the caller
// can rank by similarity before trimming to limit.
func (h *HistoryStore) GetPastRisks(ctx context.Context, limit int, filter hazardctx.Filter) ([]hazardctx.RiskRecord, error) {
	if filter.SiteName == "" || limit <= 0 {
		return nil, nil
	}
	sessions, err := h.find(ctx,
		specification.BySiteName{SiteName: filter.SiteName},
		specification.CompletedBetween{To: h.now().AddDate(0, 0, -h.recentDays)},
		specification.ExcludeID{ID: filter.ExcludeSessionID},
		specification.NewestFirst{},
		specification.Pagination{Limit: limit * 4},
	)
	if err != nil {
		return nil, err
	}
	return flattenRisks(sessions), nil
}

func (h *HistoryStore) GetHiyariHattoItems(ctx context.Context, limit int, filter hazardctx.Filter) ([]hazardctx.NearMissRecord, error) {
	if filter.SiteName == "" || limit <= 0 {
		return nil, nil
	}
	sessions, err := h.find(ctx,
		specification.BySiteName{SiteName: filter.SiteName},
		specification.NearMissReported{},
		specification.ExcludeID{ID: filter.ExcludeSessionID},
		specification.NewestFirst{},
		specification.Pagination{Limit: limit},
	)
	if err != nil {
		return nil, err
	}
	out := make([]hazardctx.NearMissRecord, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, hazardctx.NearMissRecord{
			SessionID:  s.Id,
			ReportedAt: s.CompletedAt,
			Note:       s.NearMissNote,
		})
	}
	return out, nil
}

// ListCompleted returns the newest completed sessions for a site.
func (h *HistoryStore) ListCompleted(ctx context.Context, siteName string, limit int) ([]*entity.KySession, error) {
	return h.find(ctx,
		specification.BySiteName{SiteName: siteName},
		specification.NewestFirst{},
		specification.Pagination{Limit: limit},
	)
}

func (h *HistoryStore) find(ctx context.Context, specs ...specification.Specification) ([]*entity.KySession, error) {
	uow := h.uowFactory.NewUnitOfWork(ctx)
	return uow.KySessionRepository().FindAll(ctx, specs...)
}

func flattenRisks(sessions []*entity.KySession) []hazardctx.RiskRecord {
	var out []hazardctx.RiskRecord
	for _, s := range sessions {
		for _, item := range s.WorkItems {
			if item.HazardDescription == "" {
				continue
			}
			measures := make([]string, 0, len(item.Countermeasures))
			for _, cm := range item.Countermeasures {
				measures = append(measures, cm.Text)
			}
			out = append(out, hazardctx.RiskRecord{
				SessionID:         s.Id,
				CompletedAt:       s.CompletedAt,
				WorkDescription:   item.WorkDescription,
				HazardDescription: item.HazardDescription,
				RiskLevel:         item.RiskLevel,
				Countermeasures:   measures,
			})
		}
	}
	return out
}
