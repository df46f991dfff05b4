package uow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/campusgo/internal/repository"
	postgresrepo "github.com/kirinyoku/campusgo/internal/repository/postgres"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Func is the body of a unit of work. Hooks registered through after run
// only once the transaction that produced them has committed.
type Func func(ctx context.Context, repos repository.Repos, after func(AfterCommit)) error

type Isolation int

const (
	Serializable Isolation = iota
	ReadCommitted
)

type Options struct {
	Isolation Isolation
	ReadOnly  bool
}

// Runner executes units of work.
type Runner interface {
	Do(ctx context.Context, fn Func) error
	DoWithOpts(ctx context.Context, opts Options, fn Func) error
}

const defaultMaxAttempts = 3

// UoW represents a unit of work on Postgres.
type UoW struct {
	store       *postgresrepo.Store
	maxAttempts int
}

func NewUoW(store *postgresrepo.Store) *UoW {
	return &UoW{store: store, maxAttempts: defaultMaxAttempts}
}

// Do runs fn inside a serializable transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(ctx context.Context, fn Func) error {
	return u.DoWithOpts(ctx, Options{}, fn)
}

// DoWithOpts runs fn inside a transaction with the given options.
// Serialization failures and deadlocks restart fn in a fresh transaction;
// hooks from aborted attempts are discarded. When attempts run out the
// error wraps repository.ErrRetryable.
func (u *UoW) DoWithOpts(ctx context.Context, opts Options, fn Func) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}
	if opts.Isolation == ReadCommitted {
		txOpts.IsoLevel = pgx.ReadCommitted
	}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}

	var lastErr error
	for attempt := 0; attempt < u.maxAttempts; attempt++ {
		var hooks []AfterCommit

		err := u.store.RunTx(ctx, &txOpts, func(ctx context.Context, tx postgresrepo.DB) error {
			return fn(ctx, u.store.Bind(tx), func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil {
			for _, h := range hooks {
				h(ctx)
			}
			return nil
		}

		if !postgresrepo.IsRetryable(err) {
			return err
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w: %v", repository.ErrRetryable, lastErr)
}
