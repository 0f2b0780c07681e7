/*
reminder.go - Advisory adjustment-due reminder

PURPOSE:
  Periodically checks whether today is the first Wednesday of the month
  and whether this month's adjustment has been committed, and logs a
  reminder when the adjustment is due but not yet applied.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Strictly advisory: it never runs the batch itself. The monthly
    adjustment requires an operator-supplied percentage and stays an
    explicit human action; missing the first Wednesday has no effect
    beyond this log line.

USAGE:
  reminder := NewDueReminder(handler.Orchestrator, log)
  reminder.Start()
  // ... later
  reminder.Stop()

SEE ALSO:
  - handlers.go: GetDue endpoint (the same signal over HTTP)
  - tariff/period.go: first-Wednesday rule
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linehaul/tariff-engine/tariff"
)

// DueReminder logs when the monthly adjustment is due but not applied.
type DueReminder struct {
	Orchestrator  *tariff.Orchestrator
	CheckInterval time.Duration
	Log           logrus.FieldLogger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDueReminder creates a reminder with a one-hour check interval.
func NewDueReminder(o *tariff.Orchestrator, log logrus.FieldLogger) *DueReminder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DueReminder{
		Orchestrator:  o,
		CheckInterval: time.Hour,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the reminder loop. An interval of zero disables it.
func (dr *DueReminder) Start() {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	if dr.CheckInterval <= 0 {
		dr.Log.Info("due reminder disabled")
		return
	}

	dr.ticker = time.NewTicker(dr.CheckInterval)
	dr.wg.Add(1)
	go dr.run()

	dr.Log.WithField("interval", dr.CheckInterval.String()).Info("due reminder started")
}

// Stop halts the reminder loop.
func (dr *DueReminder) Stop() {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	if dr.ticker != nil {
		dr.ticker.Stop()
		close(dr.stop)
		dr.wg.Wait()
		dr.ticker = nil
		dr.Log.Info("due reminder stopped")
	}
}

func (dr *DueReminder) run() {
	defer dr.wg.Done()

	dr.check()
	for {
		select {
		case <-dr.ticker.C:
			dr.check()
		case <-dr.stop:
			return
		}
	}
}

func (dr *DueReminder) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	due, applied, err := dr.Orchestrator.Due(ctx)
	if err != nil {
		dr.Log.WithError(err).Warn("due check failed")
		return
	}
	if due && !applied {
		dr.Log.WithField("month", tariff.MonthOf(time.Now()).String()).
			Info("monthly diesel adjustment is due and has not been applied")
	}
}
