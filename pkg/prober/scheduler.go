// Package prober implements the Prober loop and Probe Scheduler: one
// cancellable task per monitored site, reconciled once per second against
// the live site table.
package prober

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/pkg/analytics"
	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/database"
)

// Scheduler holds one task per site and reconciles that set against the
// operational store's site table on a fixed tick. There is no global probe
// lock: distinct sites' probers run fully in parallel.
type Scheduler struct {
	db        *database.DB
	cfg       *config.Config
	bus       *bus.Bus
	analytics analytics.Store

	tasks   map[int]*siteTask
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool

	cyclesRun      int64
	eventsPublished int64
	eventsSkipped   int64
	statsMu         sync.Mutex
}

// New creates a Scheduler. analyticsStore may be nil only in tests that do
// not exercise the cycle path.
func New(db *database.DB, cfg *config.Config, b *bus.Bus, analyticsStore analytics.Store) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:        db,
		cfg:       cfg,
		bus:       b,
		analytics: analyticsStore,
		tasks:     make(map[int]*siteTask),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the reconciliation loop.
func (s *Scheduler) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	log.Println("🛰  Starting probe scheduler...")

	if err := s.reconcile(); err != nil {
		log.Printf("initial reconcile failed: %v", err)
	}

	go s.reconcileLoop()

	s.running = true
	log.Println("✅ Probe scheduler started")
	return nil
}

// Stop cancels every site task and the reconciliation loop, waiting for
// in-flight cycles to finish their current probe-and-publish step.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	log.Println("🛑 Stopping probe scheduler...")
	s.cancel()

	for _, t := range s.tasks {
		t.stop()
	}
	s.running = false
	log.Println("✅ Probe scheduler stopped")
}

// GetStatus reports the scheduler's live task set for the status surface.
func (s *Scheduler) GetStatus() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sites := make([]map[string]interface{}, 0, len(s.tasks))
	for id, t := range s.tasks {
		sites = append(sites, map[string]interface{}{
			"site_id":           id,
			"effective_interval": t.intervalSec,
		})
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	return map[string]interface{}{
		"running":          s.running,
		"active_sites":     len(s.tasks),
		"sites":            sites,
		"cycles_run":       s.cyclesRun,
		"events_published": s.eventsPublished,
		"events_skipped":   s.eventsSkipped,
	}
}

func (s *Scheduler) reconcileLoop() {
	interval := time.Duration(s.cfg.Pinger.ReconcileIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.reconcile(); err != nil {
				log.Printf("reconcile failed: %v", err)
			}
		}
	}
}

// reconcile implements the Probe Scheduler's four-step tick: start tasks for
// new sites, retune tasks whose interval changed, and cancel tasks for sites
// that disappeared.
func (s *Scheduler) reconcile() error {
	sites, err := s.db.SiteRepository().List()
	if err != nil {
		return err
	}

	seen := make(map[int]bool, len(sites))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, site := range sites {
		seen[site.ID] = true

		existing, ok := s.tasks[site.ID]
		if !ok {
			s.startTask(site)
			continue
		}

		if existing.intervalSec != site.PingIntervalSec {
			existing.stop()
			delete(s.tasks, site.ID)
			s.startTask(site)
		}
	}

	for id, t := range s.tasks {
		if !seen[id] {
			t.stop()
			delete(s.tasks, id)
		}
	}

	return nil
}

func (s *Scheduler) startTask(site *database.Site) {
	t := newSiteTask(s, site.ID, site.PingIntervalSec)
	s.tasks[site.ID] = t
	t.start()
}

func (s *Scheduler) recordCycle(published bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.cyclesRun++
	if published {
		s.eventsPublished++
	} else {
		s.eventsSkipped++
	}
}
