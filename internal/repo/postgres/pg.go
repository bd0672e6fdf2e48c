package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/repo"
)

const (
	resultsTable = "check_results"
	uptimeTable  = "uptime_records"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Pool is the part of *pgxpool.Pool the store needs, so tests can swap in
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type Store struct {
	pool Pool
	log  *zap.Logger
}

var _ repo.Store = (*Store)(nil)

// New connects to dsn, pings and applies the schema.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := NewWithPool(p, log)
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

func NewWithPool(pool Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, log: log}
}

func (s *Store) Close() { s.pool.Close() }

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r domain.CheckResult) error {
	var details []byte
	if len(r.Details) > 0 {
		b, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		details = b
	}
	query, args, err := psql.Insert(resultsTable).
		Columns("service", "checked_at", "outcome", "latency_ms", "message", "details").
		Values(r.Service, r.Timestamp, r.Outcome.String(), float64(r.Latency.Microseconds())/1000, r.Message, details).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert result: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, service string, limit int) ([]domain.CheckResult, error) {
	b := psql.Select("service", "checked_at", "outcome", "latency_ms", "message", "details").
		From(resultsTable).
		Where(sq.Eq{"service": service}).
		OrderBy("checked_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var (
			r         domain.CheckResult
			outcome   string
			latencyMS float64
			details   []byte
		)
		if err := rows.Scan(&r.Service, &r.Timestamp, &outcome, &latencyMS, &r.Message, &details); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := r.Outcome.UnmarshalText([]byte(outcome)); err != nil {
			return nil, err
		}
		r.Latency = time.Duration(latencyMS * float64(time.Millisecond))
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				s.log.Warn("result_details_decode_failed", zap.String("service", r.Service), zap.Error(err))
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete(resultsTable).Where(sq.Lt{"checked_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- UptimeStore ----

func (s *Store) UpsertUptime(ctx context.Context, recs []domain.UptimeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	b := psql.Insert(uptimeTable).Columns(
		"service", "period", "period_start", "total_checks", "healthy_checks",
		"outage_seconds", "coverage_start", "last_check",
	)
	for _, r := range recs {
		b = b.Values(r.Service, string(r.Period), r.PeriodStart, r.TotalChecks, r.HealthyChecks,
			r.OutageSeconds, r.CoverageStart, r.LastCheck)
	}
	query, args, err := b.Suffix(`ON CONFLICT (service, period, period_start) DO UPDATE SET
  total_checks = EXCLUDED.total_checks,
  healthy_checks = EXCLUDED.healthy_checks,
  outage_seconds = EXCLUDED.outage_seconds,
  coverage_start = EXCLUDED.coverage_start,
  last_check = EXCLUDED.last_check`).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert uptime: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert uptime: %w", err)
	}
	return nil
}

func (s *Store) LoadUptime(ctx context.Context, since time.Time) ([]domain.UptimeRecord, error) {
	query, args, err := psql.Select(
		"service", "period", "period_start", "total_checks", "healthy_checks",
		"outage_seconds", "coverage_start", "last_check",
	).From(uptimeTable).
		Where(sq.GtOrEq{"period_start": since}).
		OrderBy("service", "period_start").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load uptime: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load uptime: %w", err)
	}
	defer rows.Close()

	var out []domain.UptimeRecord
	for rows.Next() {
		var (
			r      domain.UptimeRecord
			period string
		)
		if err := rows.Scan(&r.Service, &period, &r.PeriodStart, &r.TotalChecks, &r.HealthyChecks,
			&r.OutageSeconds, &r.CoverageStart, &r.LastCheck); err != nil {
			return nil, fmt.Errorf("scan uptime: %w", err)
		}
		r.Period = domain.Period(period)
		out = append(out, r)
	}
	return out, rows.Err()
}
