// Package uptime rolls check results into day, week and month availability
// buckets in the configured timezone.
package uptime

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

type key struct {
	service string
	period  domain.Period
	start   int64
}

// Summary is the availability of the current bucket of one period.
// UptimePercent is relative to the observed window CoverageStart..LastCheck,
// not to the whole period so far.
type Summary struct {
	Period        domain.Period `json:"period"`
	PeriodStart   time.Time     `json:"period_start"`
	TotalChecks   int64         `json:"total_checks"`
	HealthyChecks int64         `json:"healthy_checks"`
	OutageSeconds float64       `json:"outage_seconds"`
	UptimePercent float64       `json:"uptime_percent"`
	CoverageStart time.Time     `json:"coverage_start,omitzero"`
	LastCheck     time.Time     `json:"last_check,omitzero"`
}

type Aggregator struct {
	mu       sync.Mutex
	loc      *time.Location
	interval time.Duration
	records  map[key]*domain.UptimeRecord
	last     map[string]time.Time
	dirty    map[key]bool
}

func NewAggregator(loc *time.Location, interval time.Duration) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		loc:      loc,
		interval: interval,
		records:  map[key]*domain.UptimeRecord{},
		last:     map[string]time.Time{},
		dirty:    map[key]bool{},
	}
}

// Configure updates the timezone and the nominal poll interval used for a
// service's first result.
func (a *Aggregator) Configure(loc *time.Location, interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if loc != nil {
		a.loc = loc
	}
	a.interval = interval
}

// PeriodStart returns the start of the period containing t, in loc. Weeks
// start on Monday.
func PeriodStart(p domain.Period, t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	day := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
	switch p {
	case domain.PeriodWeek:
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	case domain.PeriodMonth:
		return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, loc)
	}
	return day
}

// Record adds r to the buckets open at r.Timestamp. A non healthy result
// counts the time since the previous result (or the nominal interval) as
// outage.
func (a *Aggregator) Record(r domain.CheckResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	gap := a.interval
	if prev, ok := a.last[r.Service]; ok {
		if !r.Timestamp.After(prev) {
			return
		}
		gap = r.Timestamp.Sub(prev)
	}
	a.last[r.Service] = r.Timestamp

	for _, p := range domain.Periods {
		start := PeriodStart(p, r.Timestamp, a.loc)
		k := key{service: r.Service, period: p, start: start.Unix()}
		rec, ok := a.records[k]
		span := gap
		if since := r.Timestamp.Sub(start); span > since {
			span = since
		}
		if !ok {
			rec = &domain.UptimeRecord{
				Service:       r.Service,
				Period:        p,
				PeriodStart:   start,
				CoverageStart: r.Timestamp.Add(-span),
			}
			a.records[k] = rec
		}
		rec.TotalChecks++
		if r.Healthy() {
			rec.HealthyChecks++
		} else {
			rec.OutageSeconds += span.Seconds()
		}
		rec.LastCheck = r.Timestamp
		a.dirty[k] = true
	}
}

// Summaries returns the current bucket of each period for service at now.
func (a *Aggregator) Summaries(service string, now time.Time) []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Summary, 0, len(domain.Periods))
	for _, p := range domain.Periods {
		start := PeriodStart(p, now, a.loc)
		s := Summary{Period: p, PeriodStart: start, UptimePercent: 100}
		if rec, ok := a.records[key{service, p, start.Unix()}]; ok {
			s.TotalChecks = rec.TotalChecks
			s.HealthyChecks = rec.HealthyChecks
			s.OutageSeconds = rec.OutageSeconds
			s.UptimePercent = rec.Ratio() * 100
			s.CoverageStart = rec.CoverageStart
			s.LastCheck = rec.LastCheck
		}
		out = append(out, s)
	}
	return out
}

// Records returns every bucket of service, oldest first.
func (a *Aggregator) Records(service string) []domain.UptimeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.UptimeRecord
	for k, rec := range a.records {
		if k.service == service {
			out = append(out, *rec)
		}
	}
	sortRecords(out)
	return out
}

// Load merges persisted records, typically at startup. Records already in
// memory win.
func (a *Aggregator) Load(recs []domain.UptimeRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range recs {
		start := PeriodStart(r.Period, r.PeriodStart, a.loc)
		k := key{service: r.Service, period: r.Period, start: start.Unix()}
		if _, ok := a.records[k]; ok {
			continue
		}
		rec := r
		a.records[k] = &rec
		if r.LastCheck.After(a.last[r.Service]) {
			a.last[r.Service] = r.LastCheck
		}
	}
}

// Flush returns copies of the buckets changed since the previous Flush.
func (a *Aggregator) Flush() []domain.UptimeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.UptimeRecord, 0, len(a.dirty))
	for k := range a.dirty {
		if rec, ok := a.records[k]; ok {
			out = append(out, *rec)
		}
	}
	clear(a.dirty)
	sortRecords(out)
	return out
}

// MarkDirty re-queues records whose flush failed.
func (a *Aggregator) MarkDirty(recs []domain.UptimeRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range recs {
		a.dirty[key{r.Service, r.Period, r.PeriodStart.Unix()}] = true
	}
}

// Prune drops buckets that started before cutoff.
func (a *Aggregator) Prune(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for k, rec := range a.records {
		if rec.PeriodStart.Before(cutoff) && !a.dirty[k] {
			delete(a.records, k)
			n++
		}
	}
	return n
}

// Retain forgets services not in names.
func (a *Aggregator) Retain(names []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.records {
		if !slices.Contains(names, k.service) {
			delete(a.records, k)
			delete(a.dirty, k)
		}
	}
	for s := range a.last {
		if !slices.Contains(names, s) {
			delete(a.last, s)
		}
	}
}

func sortRecords(recs []domain.UptimeRecord) {
	order := map[domain.Period]int{domain.PeriodDay: 0, domain.PeriodWeek: 1, domain.PeriodMonth: 2}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		return order[a.Period] < order[b.Period]
	})
}
