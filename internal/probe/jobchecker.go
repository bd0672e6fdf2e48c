package probe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/watchdog/internal/domain"
)

// JobChecker watches a scheduled job through its last successful run: the
// mtime of a heartbeat file, or a timestamp returned by a SQL query. The run
// is unhealthy once older than maxAge and degraded once older than warnAge.
type JobChecker struct {
	Now     func() time.Time
	name    string
	lastRun func(ctx context.Context) (time.Time, error)
	maxAge  time.Duration
	warnAge time.Duration
}

func NewJobChecker(def domain.ServiceDefinition) (*JobChecker, error) {
	j := &JobChecker{Now: time.Now, name: def.Name, maxAge: def.Probe.MaxAge, warnAge: def.Probe.WarnAge}
	switch {
	case def.Probe.HeartbeatFile != "":
		path := def.Probe.HeartbeatFile
		j.lastRun = func(context.Context) (time.Time, error) {
			fi, err := os.Stat(path)
			if err != nil {
				return time.Time{}, err
			}
			return fi.ModTime(), nil
		}
	case def.Probe.DSN != "" && def.Probe.Query != "":
		dsn, query := def.Probe.DSN, def.Probe.Query
		j.lastRun = func(ctx context.Context) (time.Time, error) {
			return queryTimestamp(ctx, dsn, query)
		}
	default:
		return nil, fmt.Errorf("%w: job %q needs heartbeat_file or dsn and query", domain.ErrConfigInvalid, def.Name)
	}
	return j, nil
}

func (j *JobChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	last, err := j.lastRun(ctx)
	if err != nil {
		if os.IsNotExist(err) {
			return failure(j.name, start, protocolError("job has never reported: %v", err))
		}
		return failure(j.name, start, err)
	}
	age := j.Now().Sub(last)
	if age < 0 {
		age = 0
	}
	details := map[string]any{"last_run": last.UTC().Format(time.RFC3339), "age_seconds": int64(age.Seconds())}
	msg := fmt.Sprintf("last run %s ago", age.Round(time.Second))

	switch {
	case j.maxAge > 0 && age > j.maxAge:
		return withDetails(newResult(j.name, start, domain.OutcomeUnhealthy, msg+", over max age "+j.maxAge.String()), details)
	case j.warnAge > 0 && age > j.warnAge:
		return withDetails(degraded(j.name, start, msg), details)
	}
	return withDetails(healthy(j.name, start, msg), details)
}

func queryTimestamp(ctx context.Context, dsn, query string) (time.Time, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var ts *time.Time
	if err := conn.QueryRow(ctx, query).Scan(&ts); err != nil {
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		return time.Time{}, protocolError("query last run: %v", err)
	}
	if ts == nil {
		return time.Time{}, protocolError("job has never completed")
	}
	return *ts, nil
}
