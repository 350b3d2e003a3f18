package contract

import (
	"context"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/specification"
)

type KySessionRepository interface {
	// Create is idempotent on the session id.
	Create(ctx context.Context, session *entity.KySession) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.KySession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.KySession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// PruneOldest keeps the newest keep sessions by completion time.
	PruneOldest(ctx context.Context, keep int) (int64, error)
}
