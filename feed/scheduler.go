package feed

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// SyncScheduler triggers periodic syncs on a cron schedule. The single
// cron runner serializes its own triggers, and the change-marker gate
// keeps overlap with manual /admin/sync triggers harmless.
type SyncScheduler struct {
	syncer *Syncer
	cron   *cron.Cron
	spec   string
	entry  cron.EntryID
}

// NewSyncScheduler creates a scheduler. An empty cron spec disables it.
func NewSyncScheduler(syncer *Syncer, spec string) *SyncScheduler {
	return &SyncScheduler{
		syncer: syncer,
		cron:   cron.New(),
		spec:   spec,
	}
}

// Start begins the schedule. No-op when no spec is configured.
func (s *SyncScheduler) Start() error {
	if s.spec == "" {
		log.Println("[Scheduler] no sync schedule configured, not starting")
		return nil
	}

	entry, err := s.cron.AddFunc(s.spec, s.runOnce)
	if err != nil {
		return err
	}
	s.entry = entry

	s.cron.Start()
	log.Printf("[Scheduler] started with schedule %q", s.spec)
	return nil
}

// Stop halts the schedule. Blocks until a running sync finishes.
func (s *SyncScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// NextRun returns the next scheduled sync time (zero when disabled).
func (s *SyncScheduler) NextRun() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *SyncScheduler) runOnce() {
	result, err := s.syncer.Sync(context.Background())
	if err != nil {
		log.Printf("[Scheduler] sync failed: %v", err)
		return
	}
	log.Printf("[Scheduler] sync %s (last_update=%q)", result.Status, result.LastUpdate)
}
