package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/campusgo/internal/repository"
)

// DB is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Pool is a DB that can open transactions.
type Pool interface {
	DB
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Store struct {
	pool Pool
}

func NewStore(pool Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn inside a transaction. Serializable read-write is the default
// when opts is nil.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Bind returns repositories that run on db, typically a transaction.
func (s *Store) Bind(db DB) repository.Repos {
	return repos{db: db}
}

// Repos returns repositories that run directly on the pool.
func (s *Store) Repos() repository.Repos {
	return repos{db: s.pool}
}

type repos struct {
	db DB
}

func (r repos) Events() repository.EventReader              { return &EventRepo{db: r.db} }
func (r repos) Registrations() repository.TicketStore       { return &RegistrationRepo{db: r.db} }
func (r repos) CheckIns() repository.CheckInLedger          { return &CheckInRepo{db: r.db} }
func (r repos) Staff() repository.StaffAssignments          { return &StaffRepo{db: r.db} }
func (r repos) Notifications() repository.NotificationStore { return &NotificationRepo{db: r.db} }
func (r repos) Audit() repository.AuditStore                { return &AuditRepo{db: r.db} }
func (r repos) Announcements() repository.AnnouncementStore { return &AnnouncementRepo{db: r.db} }
func (r repos) Users() repository.UserDirectory             { return &UserRepo{db: r.db} }
