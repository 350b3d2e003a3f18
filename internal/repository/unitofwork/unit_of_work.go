package unitofwork

import (
	"context"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/contract"
)

// UnitOfWork scopes KY session writes to one transaction. Repositories
// obtained before Begin run outside it.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	KySessionRepository() contract.KySessionRepository
}

// RepositoryFactory hands out a fresh UnitOfWork per operation.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}
