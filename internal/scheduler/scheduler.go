package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/robfig/cron/v3"
)

// Job is a unit of background work.
type Job interface {
	Run() error
	Name() string
}

type Scheduler struct {
	cron *cron.Cron
}

// New creates a scheduler with second-level cron specs evaluated in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{cron: cron.New(cron.WithSeconds(), cron.WithLocation(loc))}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Scheduler stopped")
}

// AddJob registers job under a cron spec, e.g. "@every 5s" or "0 0 20 * * *".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		logger.Debug("Running job", "job", job.Name())
		if err := job.Run(); err != nil {
			logger.Error("Job failed", "job", job.Name(), "error", err)
			return
		}
		logger.Debug("Job completed", "job", job.Name())
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	logger.Info("Job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	logger.Info("Running job immediately", "job", job.Name())
	return job.Run()
}

// Every is the spec for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// DailyAt turns "HH:MM" into a seconds-aware cron spec firing once a day.
func DailyAt(clock string) (string, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return "", fmt.Errorf("invalid time %q, want HH:MM", clock)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("invalid hour in %q", clock)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("invalid minute in %q", clock)
	}
	return fmt.Sprintf("0 %d %d * * *", m, h), nil
}
