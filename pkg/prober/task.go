package prober

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/checks"
	"github.com/fleetmon/fleetmon/pkg/classifier"
	"github.com/fleetmon/fleetmon/pkg/database"
)

// siteTask is one cancellable, independently-scheduled prober for a single
// site. Its cycle is serial: at most one in-flight probe per site, enforced
// structurally by running the whole loop on a single goroutine.
type siteTask struct {
	scheduler   *Scheduler
	siteID      int
	intervalSec int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSiteTask(s *Scheduler, siteID, intervalSec int) *siteTask {
	ctx, cancel := context.WithCancel(s.ctx)
	return &siteTask{
		scheduler:   s,
		siteID:      siteID,
		intervalSec: intervalSec,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (t *siteTask) start() {
	t.wg.Add(1)
	go t.run()
}

// stop signals cancellation and waits for the current cycle to finish its
// probe-and-publish step before returning, matching the spec's cooperative
// cancellation model.
func (t *siteTask) stop() {
	t.cancel()
	t.wg.Wait()
}

func (t *siteTask) run() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		if err := t.runCycle(); err != nil {
			log.Printf("🛰  site %d: probe cycle failed: %v", t.siteID, err)
		}

		select {
		case <-t.ctx.Done():
			return
		case <-time.After(time.Duration(t.intervalSec) * time.Second):
		}
	}
}

// runCycle reads the site's current state, runs the checks, classifies
// against recent history, detects whether anything meaningfully changed,
// persists the result atomically, appends one analytics row, and publishes
// a ProbeEvent unless notification should be skipped.
func (t *siteTask) runCycle() error {
	siteRepo := t.scheduler.db.SiteRepository()

	site, err := siteRepo.GetByID(t.siteID)
	if err != nil {
		return err
	}

	history, err := site.History()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metrics, err := checks.Probe(ctx, site.URL)
	if err != nil {
		return err
	}

	current := toClassifierSnapshot(metrics)
	recent := toClassifierHistory(history)
	trafficLight := classifier.Classify(current, recent)

	now := time.Now()
	snapshot := database.ProbeSnapshot{
		Timestamp:    now.Format("2006-01-02T15:04:05"),
		TrafficLight: trafficLight,
		HTTPStatus:   metrics.HTTPStatus,
		LatencyMs:    metrics.LatencyMs,
		PingMs:       metrics.PingMs,
		SSLDaysLeft:  metrics.SSLDaysLeft,
		DNSResolved:  metrics.DNSResolved,
		Redirects:    metrics.Redirects,
		ErrorsLast:   metrics.ErrorsLast,
	}

	ok := trafficLight == classifier.Green
	skipNotification := !t.scheduler.cfg.Pinger.NotifyAlways && unchanged(site, ok, metrics.HTTPStatus, latencyAsRTT(metrics.LatencyMs))

	newHistory := append(history, snapshot)

	site.LastTrafficLight = &trafficLight
	site.LastOK = &ok
	site.LastStatus = metrics.HTTPStatus
	site.LastRTT = latencyAsRTT(metrics.LatencyMs)
	if err := site.SetHistory(newHistory); err != nil {
		return err
	}

	if err := siteRepo.UpdateCycleResult(site); err != nil {
		return err
	}

	if t.scheduler.analytics != nil {
		row := &database.AnalyticsRow{
			SiteID: site.ID, URL: site.URL, Name: site.Name, Timestamp: now,
			TrafficLight: trafficLight, HTTPStatus: metrics.HTTPStatus, LatencyMs: metrics.LatencyMs,
			PingMs: metrics.PingMs, SSLDaysLeft: metrics.SSLDaysLeft, DNSResolved: metrics.DNSResolved,
			Redirects: metrics.Redirects, ErrorsLast: metrics.ErrorsLast, PingIntervalSec: site.PingIntervalSec,
		}
		if err := t.scheduler.analytics.Append(ctx, row); err != nil {
			log.Printf("🛰  site %d: analytics append failed: %v", site.ID, err)
		}
	}

	if skipNotification {
		t.scheduler.recordCycle(false)
		return nil
	}

	com, err := site.Com()
	if err != nil {
		com = database.Com{}
	}
	comOut := map[string]interface{}{}
	for k, v := range com {
		comOut[k] = v
	}
	comOut["skip_notification"] = false

	event := bus.ProbeEvent{
		ID:   site.ID,
		URL:  site.URL,
		Name: site.Name,
		Com:  comOut,
		Logs: bus.ProbeLogs{
			Timestamp:    snapshot.Timestamp,
			TrafficLight: snapshot.TrafficLight,
			HTTPStatus:   snapshot.HTTPStatus,
			LatencyMs:    snapshot.LatencyMs,
			PingMs:       snapshot.PingMs,
			SSLDaysLeft:  snapshot.SSLDaysLeft,
			DNSResolved:  snapshot.DNSResolved,
			Redirects:    snapshot.Redirects,
			ErrorsLast:   snapshot.ErrorsLast,
		},
	}

	if t.scheduler.bus != nil {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pubCancel()
		if err := t.scheduler.bus.Publish(pubCtx, t.scheduler.cfg.Rabbit.PingerExchange, t.scheduler.cfg.Rabbit.PingerRoutingKey, event); err != nil {
			log.Printf("🛰  site %d: publish failed: %v", site.ID, err)
		}
	}

	t.scheduler.recordCycle(true)
	return nil
}

// unchanged compares the new cycle's ok/status/rtt against the site's
// persisted last_* fields.
func unchanged(site *database.Site, ok bool, status *int, rtt *float64) bool {
	if site.LastOK == nil || *site.LastOK != ok {
		return false
	}
	if !intPtrEqual(site.LastStatus, status) {
		return false
	}
	if !floatPtrEqual(site.LastRTT, rtt) {
		return false
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func latencyAsRTT(latencyMs *int) *float64 {
	if latencyMs == nil {
		return nil
	}
	v := float64(*latencyMs)
	return &v
}

func toClassifierSnapshot(m checks.Metrics) classifier.Snapshot {
	return classifier.Snapshot{
		HTTPStatus:  m.HTTPStatus,
		LatencyMs:   m.LatencyMs,
		PingMs:      m.PingMs,
		SSLDaysLeft: m.SSLDaysLeft,
		DNSResolved: m.DNSResolved,
		Redirects:   m.Redirects,
	}
}

func toClassifierHistory(history []database.ProbeSnapshot) []classifier.Snapshot {
	out := make([]classifier.Snapshot, 0, len(history))
	for _, h := range history {
		out = append(out, classifier.Snapshot{
			HTTPStatus:  h.HTTPStatus,
			LatencyMs:   h.LatencyMs,
			PingMs:      h.PingMs,
			SSLDaysLeft: h.SSLDaysLeft,
			DNSResolved: h.DNSResolved,
			Redirects:   h.Redirects,
		})
	}
	return out
}
