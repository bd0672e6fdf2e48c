package repo

import (
	"context"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

// Ports (interfaces): swap in any DB adapter later.
type ResultStore interface {
	Append(ctx context.Context, r domain.CheckResult) error
	// Recent returns up to limit results of service, newest first.
	Recent(ctx context.Context, service string, limit int) ([]domain.CheckResult, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type UptimeStore interface {
	// UpsertUptime writes absolute bucket totals, replacing stored values.
	UpsertUptime(ctx context.Context, recs []domain.UptimeRecord) error
	LoadUptime(ctx context.Context, since time.Time) ([]domain.UptimeRecord, error)
}

type Store interface {
	ResultStore
	UptimeStore
	Close()
}
