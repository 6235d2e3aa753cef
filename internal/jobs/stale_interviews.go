// Package jobs runs background maintenance tasks for the interview service.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mbartova/medscreen/internal/notifications"
	"github.com/mbartova/medscreen/internal/store"
)

// StaleInterviewJob sweeps interview records that never reached a terminal
// state. A participant who dropped off without a save-progress call leaves
// an "In Progress" row behind; after maxAge the row is marked Abandoned so
// coordinators see an accurate dashboard.
type StaleInterviewJob struct {
	store    *store.Store
	discord  *notifications.Discord
	logger   *log.Logger
	interval time.Duration
	maxAge   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewStaleInterviewJob creates the sweeper. Zero interval defaults to one
// hour, zero maxAge to 24 hours.
func NewStaleInterviewJob(s *store.Store, discord *notifications.Discord, logger *log.Logger, interval, maxAge time.Duration) *StaleInterviewJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	return &StaleInterviewJob{
		store:    s,
		discord:  discord,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *StaleInterviewJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("StaleInterviewJob: started (interval=%v, maxAge=%v)", j.interval, j.maxAge)
}

// Stop gracefully stops the background job.
func (j *StaleInterviewJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("StaleInterviewJob: stopped")
}

func (j *StaleInterviewJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *StaleInterviewJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.maxAge)
	ids, err := j.store.MarkStaleInterviews(ctx, cutoff)
	if err != nil {
		j.logger.Printf("StaleInterviewJob: sweep failed: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	j.logger.Printf("StaleInterviewJob: marked %d stale interviews abandoned", len(ids))
	if j.discord != nil && j.discord.Enabled() {
		for _, id := range ids {
			j.discord.NotifyInterviewAbandoned(ctx, id, "", "session_timeout")
		}
	}
}
