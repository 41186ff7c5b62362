// Package housekeeping runs the periodic, read-only state-snapshot
// logger described in SPEC_FULL.md §4.13. Adapted from the teacher's
// pkg/source/cron.CronSource: the same robfig/cron/v3 scheduling and
// start/stop lifecycle, repurposed from emitting trigger messages onto
// a channel to emitting a structured log line — it never mutates
// Manager state and never calls save(), matching the Non-goal of "no
// calibration learning".
package housekeeping

import (
	"github.com/robfig/cron/v3"

	"github.com/user/cistern/pkg/manager"
)

// Logger is the subset of internal/logging.Logger housekeeping needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
}

// Snapshotter runs a cron schedule that logs Manager state.
type Snapshotter struct {
	mgr     *manager.Manager
	logger  Logger
	cron    *cron.Cron
	entryID cron.EntryID
}

// DefaultSchedule matches SPEC_FULL.md §4.13's "every minute" default.
const DefaultSchedule = "@every 1m"

// New creates a Snapshotter for mgr, logging through logger.
func New(mgr *manager.Manager, logger Logger) *Snapshotter {
	return &Snapshotter{mgr: mgr, logger: logger, cron: cron.New()}
}

// Start schedules the snapshot job and begins running it in the
// background. schedule is a robfig/cron expression; an empty string
// uses DefaultSchedule.
func (s *Snapshotter) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	id, err := s.cron.AddFunc(schedule, s.snapshot)
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Snapshotter) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Snapshotter) snapshot() {
	mode := "MANUAL"
	if s.mgr.Mode() == manager.Auto {
		mode = "AUTO"
	}
	s.logger.Info("housekeeping snapshot",
		"mode", mode,
		"water_sources", s.mgr.TotalWaterSources(),
		"water_tanks", s.mgr.TotalWaterTanks(),
	)
}
