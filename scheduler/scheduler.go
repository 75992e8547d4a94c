package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"socrates/config"
)

// Job names.
const (
	JobIngest = "ingest"
	JobDigest = "digest"
)

// Scheduler manages cron-based job scheduling with timezone support. Each
// named job has at most one entry.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	mu       sync.Mutex
	entries  map[string]cron.EntryID
	started  bool
}

// NewScheduler creates a new scheduler for the given timezone.
func NewScheduler(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
		entries:  make(map[string]cron.EntryID),
	}, nil
}

// ScheduleIngest runs fn at 23:59 every day, every other day, or on
// Sundays, depending on cadence.
func (s *Scheduler) ScheduleIngest(cadence string, fn func()) error {
	spec, err := cadenceSpec(cadence)
	if err != nil {
		return err
	}
	return s.schedule(JobIngest, spec, fn)
}

// ScheduleDigest runs fn weekly at midnight on day. An unknown day falls
// back to Sunday.
func (s *Scheduler) ScheduleDigest(day string, fn func()) error {
	return s.schedule(JobDigest, digestSpec(day), fn)
}

func (s *Scheduler) schedule(name, spec string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing job if any
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("add cron job %s: %w", name, err)
	}
	s.entries[name] = entryID

	return nil
}

// Next returns the next run time of a named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.cron.Stop()
		s.started = false
	}
}

func cadenceSpec(cadence string) (string, error) {
	// Cron format: minute hour day month weekday
	switch cadence {
	case config.CadenceDaily:
		return "59 23 * * *", nil
	case config.CadenceEveryOtherDay:
		return "59 23 */2 * *", nil
	case config.CadenceWeekly:
		return "59 23 * * 0", nil
	default:
		return "", fmt.Errorf("invalid ingest cadence: %q", cadence)
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func digestSpec(day string) string {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
	if !ok {
		wd = time.Sunday
	}
	return fmt.Sprintf("0 0 * * %d", int(wd))
}
