// Package maintenance decides whether a service sits inside a planned
// maintenance window. It is a pure function of the wall clock and the
// configured windows.
package maintenance

import (
	"fmt"
	"slices"
	"time"

	"github.com/hamed0406/watchdog/internal/config"
)

// window is a parsed config.MaintenanceWindow. start is inclusive and end
// exclusive; end < start spans midnight.
type window struct {
	name     string
	start    time.Duration
	end      time.Duration
	days     map[time.Weekday]bool
	services []string
}

// Evaluator holds the compiled windows of one config snapshot.
type Evaluator struct {
	loc     *time.Location
	windows []window
}

// Compile parses the enabled windows. Disabled windows are skipped.
func Compile(windows []config.MaintenanceWindow, loc *time.Location) (*Evaluator, error) {
	if loc == nil {
		loc = time.Local
	}
	e := &Evaluator{loc: loc}
	for _, w := range windows {
		if !w.Enabled {
			continue
		}
		start, err := config.ParseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", w.Name, err)
		}
		end, err := config.ParseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", w.Name, err)
		}
		cw := window{name: w.Name, start: start, end: end, services: w.Services}
		if len(w.Days) > 0 {
			cw.days = make(map[time.Weekday]bool, len(w.Days))
			for _, d := range w.Days {
				wd, err := config.ParseWeekday(d)
				if err != nil {
					return nil, fmt.Errorf("window %q: %w", w.Name, err)
				}
				cw.days[wd] = true
			}
		}
		e.windows = append(e.windows, cw)
	}
	return e, nil
}

// Active returns the name of the first window covering service at now.
func (e *Evaluator) Active(service string, now time.Time) (string, bool) {
	if e == nil {
		return "", false
	}
	local := now.In(e.loc)
	// Wall clock time of day, so DST shifts do not move the windows.
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	for _, w := range e.windows {
		if w.covers(service) && w.contains(tod, local.Weekday()) {
			return w.name, true
		}
	}
	return "", false
}

// Suppressed reports whether any enabled window covers service at now.
func (e *Evaluator) Suppressed(service string, now time.Time) bool {
	_, ok := e.Active(service, now)
	return ok
}

func (w window) covers(service string) bool {
	return len(w.services) == 0 || slices.Contains(w.services, service)
}

func (w window) dayAllowed(d time.Weekday) bool {
	return w.days == nil || w.days[d]
}

func (w window) contains(tod time.Duration, day time.Weekday) bool {
	switch {
	case w.start == w.end:
		return false
	case w.start < w.end:
		return tod >= w.start && tod < w.end && w.dayAllowed(day)
	}
	// Overnight: the part after midnight belongs to the previous day's window.
	if tod >= w.start {
		return w.dayAllowed(day)
	}
	if tod < w.end {
		return w.dayAllowed((day + 6) % 7)
	}
	return false
}
