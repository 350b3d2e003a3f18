package implementation

import (
	"context"
	"errors"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/mapper"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/model"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/contract"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KySessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KySessionMapper
}

func NewKySessionRepository(db *gorm.DB) contract.KySessionRepository {
	return &KySessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewKySessionMapper(),
	}
}

func (r *KySessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *KySessionRepositoryImpl) Create(ctx context.Context, session *entity.KySession) error {
	m := r.mapper.ToModel(session)
	// Redelivered completion messages must not fail on the primary key.
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.ToEntity(m)
	return nil
}

func (r *KySessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.KySession, error) {
	var m model.KySession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *KySessionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.KySession, error) {
	var models []*model.KySession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.KySession, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *KySessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.KySession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *KySessionRepositoryImpl) PruneOldest(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	newest := db.Model(&model.KySession{}).
		Select("id").
		Order("completed_at DESC").
		Order("id DESC").
		Limit(keep)

	result := db.Where("id NOT IN (?)", newest).Delete(&model.KySession{})
	return result.RowsAffected, result.Error
}
