package prober

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/database"
)

func testScheduler(t *testing.T) (*Scheduler, *database.DB) {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{MainURL: ":memory:"}}
	cfg.Pinger.ReconcileIntervalMs = 50
	db, err := database.NewDB(cfg)
	require.NoError(t, err)

	s := New(db, cfg, nil, nil)
	return s, db
}

func TestScheduler_StartStop_IsIdempotent(t *testing.T) {
	s, db := testScheduler(t)
	defer db.Close()

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	status := s.GetStatus()
	assert.Equal(t, true, status["running"])

	s.Stop()
	s.Stop()

	status = s.GetStatus()
	assert.Equal(t, false, status["running"])
}

func TestScheduler_Reconcile_StartsOneTaskPerSite(t *testing.T) {
	s, db := testScheduler(t)
	defer db.Close()

	site := &database.Site{URL: "https://example.com", Name: "Example", PingIntervalSec: 3600}
	require.NoError(t, db.SiteRepository().Create(site))

	require.NoError(t, s.reconcile())

	status := s.GetStatus()
	assert.Equal(t, 1, status["active_sites"])

	s.Stop()
}

func TestScheduler_Reconcile_RetunesOnIntervalChange(t *testing.T) {
	s, db := testScheduler(t)
	defer db.Close()

	site := &database.Site{URL: "https://example.com", Name: "Example", PingIntervalSec: 3600}
	require.NoError(t, db.SiteRepository().Create(site))
	require.NoError(t, s.reconcile())

	original := s.tasks[site.ID]
	require.NotNil(t, original)

	require.NoError(t, db.SiteRepository().SetPingInterval(site.ID, 60))
	require.NoError(t, s.reconcile())

	updated := s.tasks[site.ID]
	require.NotNil(t, updated)
	assert.NotSame(t, original, updated)
	assert.Equal(t, 60, updated.intervalSec)

	s.Stop()
}

func TestScheduler_Reconcile_StopsTaskForDeletedSite(t *testing.T) {
	s, db := testScheduler(t)
	defer db.Close()

	site := &database.Site{URL: "https://example.com", Name: "Example", PingIntervalSec: 3600}
	require.NoError(t, db.SiteRepository().Create(site))
	require.NoError(t, s.reconcile())
	require.Len(t, s.tasks, 1)

	require.NoError(t, db.SiteRepository().Delete(site.ID))
	require.NoError(t, s.reconcile())
	assert.Len(t, s.tasks, 0)

	s.Stop()
}

func TestSiteTask_RunCycle_SkipsNotificationWhenUnchanged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, db := testScheduler(t)
	defer db.Close()

	site := &database.Site{URL: server.URL, Name: "Example", PingIntervalSec: 3600}
	require.NoError(t, db.SiteRepository().Create(site))

	task := newSiteTask(s, site.ID, site.PingIntervalSec)

	require.NoError(t, task.runCycle())
	first, err := db.SiteRepository().GetByID(site.ID)
	require.NoError(t, err)
	require.NotNil(t, first.LastOK)
	assert.True(t, *first.LastOK)

	require.NoError(t, task.runCycle())
	second, err := db.SiteRepository().GetByID(site.ID)
	require.NoError(t, err)

	history, err := second.History()
	require.NoError(t, err)
	assert.Len(t, history, 2)

	task.cancel()
}

func TestSiteTask_RunCycle_NotifiesOnStatusChange(t *testing.T) {
	failing := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	s, db := testScheduler(t)
	defer db.Close()

	site := &database.Site{URL: server.URL, Name: "Example", PingIntervalSec: 3600}
	require.NoError(t, db.SiteRepository().Create(site))

	task := newSiteTask(s, site.ID, site.PingIntervalSec)
	require.NoError(t, task.runCycle())

	failing = false
	require.NoError(t, task.runCycle())

	updated, err := db.SiteRepository().GetByID(site.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastOK)

	task.cancel()
}

func TestSiteTask_StartStop_StopsCleanly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, db := testScheduler(t)
	defer db.Close()

	site := &database.Site{URL: server.URL, Name: "Example", PingIntervalSec: 1}
	require.NoError(t, db.SiteRepository().Create(site))

	task := newSiteTask(s, site.ID, site.PingIntervalSec)
	task.start()
	time.Sleep(50 * time.Millisecond)
	task.stop()
}
