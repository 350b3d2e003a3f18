package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/contract"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/specification"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/unitofwork"
)

// fakeRepo keeps sessions in memory and records the specs of each query.
type fakeRepo struct {
	mu        sync.Mutex
	sessions  map[string]*entity.KySession
	findAll   []*entity.KySession
	queries   [][]specification.Specification
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: map[string]*entity.KySession{}}
}

func (r *fakeRepo) Create(ctx context.Context, s *entity.KySession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.sessions[s.Id]; !ok {
		cp := *s
		r.sessions[s.Id] = &cp
	}
	return nil
}

func (r *fakeRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.KySession, error) {
	return nil, errors.New("not used")
}

func (r *fakeRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.KySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, specs)
	return r.findAll, nil
}

func (r *fakeRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sessions)), nil
}

func (r *fakeRepo) PruneOldest(ctx context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*entity.KySession, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CompletedAt.After(all[j].CompletedAt) })
	var pruned int64
	for i := keep; i < len(all); i++ {
		delete(r.sessions, all[i].Id)
		pruned++
	}
	return pruned, nil
}

type fakeUoW struct {
	repo      *fakeRepo
	committed *int
}

func (u *fakeUoW) Begin(ctx context.Context) error { return nil }
func (u *fakeUoW) Commit() error                   { *u.committed++; return nil }
func (u *fakeUoW) Rollback() error                 { return nil }

func (u *fakeUoW) KySessionRepository() contract.KySessionRepository { return u.repo }

type fakeFactory struct {
	repo    *fakeRepo
	commits int
}

func (f *fakeFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUoW{repo: f.repo, committed: &f.commits}
}
