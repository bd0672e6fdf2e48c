package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS check_results (
  id         BIGSERIAL PRIMARY KEY,
  service    TEXT NOT NULL,
  checked_at TIMESTAMPTZ NOT NULL,
  outcome    TEXT NOT NULL,
  latency_ms DOUBLE PRECISION NOT NULL,
  message    TEXT NOT NULL,
  details    JSONB NULL
);

CREATE INDEX IF NOT EXISTS idx_check_results_service_time ON check_results (service, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_results_checked_at   ON check_results (checked_at);

CREATE TABLE IF NOT EXISTS uptime_records (
  service        TEXT NOT NULL,
  period         TEXT NOT NULL,
  period_start   TIMESTAMPTZ NOT NULL,
  total_checks   BIGINT NOT NULL,
  healthy_checks BIGINT NOT NULL,
  outage_seconds DOUBLE PRECISION NOT NULL,
  coverage_start TIMESTAMPTZ NOT NULL,
  last_check     TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (service, period, period_start)
);
`
