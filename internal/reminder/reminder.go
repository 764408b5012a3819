// Package reminder warns when the data has not been backed up for a while.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"harvester/internal/log"
)

// DefaultDays is how long a backup stays fresh.
const DefaultDays = 7

// DefaultSchedule checks every morning at nine.
const DefaultSchedule = "0 9 * * *"

// BackupStamps reads the time of the last backup; zero means never.
type BackupStamps interface {
	LastBackup(ctx context.Context) (time.Time, error)
}

// Status is the outcome of one check.
type Status struct {
	LastBackup time.Time `json:"lastBackup,omitempty"`
	Days       float64   `json:"days"`
	Due        bool      `json:"due"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Message is the warning shown to the operator.
func (s Status) Message() string {
	if !s.Due {
		return ""
	}
	return fmt.Sprintf("Backup warning: you haven't saved a backup in %d days.", int(s.Days))
}

// Check reports whether a backup is overdue. A store that was never backed
// up is not nagged about; the prompt starts once a first backup exists.
func Check(last, now time.Time, days int) Status {
	st := Status{LastBackup: last, CheckedAt: now}
	if last.IsZero() {
		return st
	}
	st.Days = now.Sub(last).Hours() / 24
	st.Due = st.Days > float64(days)
	return st
}

// Scheduler runs Check on a cron schedule and hands due results to notify.
type Scheduler struct {
	cron   *cron.Cron
	stamps BackupStamps
	days   int
	notify func(context.Context, Status)
	now    func() time.Time
	logger *log.Logger

	mu     sync.RWMutex
	latest Status
}

// New validates schedule (standard five-field cron) and registers the check.
func New(stamps BackupStamps, days int, schedule string, notify func(context.Context, Status)) (*Scheduler, error) {
	if days <= 0 {
		days = DefaultDays
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s := &Scheduler{
		cron:   cron.New(),
		stamps: stamps,
		days:   days,
		notify: notify,
		now:    time.Now,
		logger: log.WithComponent(log.ComponentReminder),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule backup reminder %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting backup reminder", "days", s.days)
	s.cron.Start()
}

// Stop waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Backup reminder stopped")
}

// RunOnce performs a check immediately.
func (s *Scheduler) RunOnce(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	last, err := s.stamps.LastBackup(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read backup stamp", log.FieldError, err)
		return s.Latest()
	}
	st := Check(last, s.now(), s.days)

	s.mu.Lock()
	s.latest = st
	s.mu.Unlock()

	if st.Due {
		s.logger.WarnContext(ctx, "Backup overdue", "days", int(st.Days))
		if s.notify != nil {
			s.notify(ctx, st)
		}
	}
	return st
}

// Latest returns the result of the most recent check.
func (s *Scheduler) Latest() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}
