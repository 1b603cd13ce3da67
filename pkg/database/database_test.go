package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetmon/fleetmon/pkg/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{MainURL: ":memory:"}}
	db, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_InMemory_InitializesSchema(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.HealthCheck())

	stats, err := db.GetStats()
	require.NoError(t, err)
	require.Equal(t, 0, stats["sites_count"])
}

func TestSiteRepository_CreateAndRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := db.SiteRepository()

	site := &Site{URL: "https://example.com", Name: "Example", PingIntervalSec: 30}
	require.NoError(t, site.SetCom(Com{"llm": true}))
	require.NoError(t, site.SetHistory(nil))
	require.NoError(t, repo.Create(site))
	require.NotZero(t, site.ID)

	fetched, err := repo.GetByURL("https://example.com")
	require.NoError(t, err)
	require.Equal(t, site.ID, fetched.ID)

	com, err := fetched.Com()
	require.NoError(t, err)
	require.Equal(t, true, com["llm"])
}

func TestSiteRepository_HistoryTruncatesAtTen(t *testing.T) {
	db := testDB(t)
	repo := db.SiteRepository()

	site := &Site{URL: "https://trunc.example.com", Name: "Trunc", PingIntervalSec: 30}
	require.NoError(t, site.SetCom(Com{}))

	var history []ProbeSnapshot
	for i := 0; i < 15; i++ {
		history = append(history, ProbeSnapshot{TrafficLight: "green"})
	}
	require.NoError(t, site.SetHistory(history))
	require.NoError(t, repo.Create(site))

	fetched, err := repo.GetByID(site.ID)
	require.NoError(t, err)
	got, err := fetched.History()
	require.NoError(t, err)
	require.Len(t, got, 10)
}

func TestSiteRepository_UpdateCycleResult(t *testing.T) {
	db := testDB(t)
	repo := db.SiteRepository()

	site := &Site{URL: "https://cycle.example.com", Name: "Cycle", PingIntervalSec: 30}
	require.NoError(t, site.SetCom(Com{}))
	require.NoError(t, site.SetHistory(nil))
	require.NoError(t, repo.Create(site))

	status := 200
	rtt := 123.0
	light := "green"
	site.LastTrafficLight = &light
	site.LastOK = boolPtr(true)
	site.LastStatus = &status
	site.LastRTT = &rtt
	require.NoError(t, site.SetHistory([]ProbeSnapshot{{TrafficLight: "green", HTTPStatus: &status}}))

	require.NoError(t, repo.UpdateCycleResult(site))

	fetched, err := repo.GetByID(site.ID)
	require.NoError(t, err)
	require.Equal(t, "green", *fetched.LastTrafficLight)
	require.Equal(t, 200, *fetched.LastStatus)
}

func TestTeamRepository_TeamsTrackingSite(t *testing.T) {
	db := testDB(t)
	teamRepo := db.TeamRepository()

	team := &Team{Name: "ops"}
	require.NoError(t, team.SetTrackedSiteIDs([]int{1, 2, 3}))
	require.NoError(t, team.SetEmailRecipients([]string{"ops@example.com"}))
	require.NoError(t, teamRepo.Create(team))

	other := &Team{Name: "payments"}
	require.NoError(t, other.SetTrackedSiteIDs([]int{42}))
	require.NoError(t, other.SetEmailRecipients(nil))
	require.NoError(t, teamRepo.Create(other))

	matches, err := teamRepo.TeamsTrackingSite(2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "ops", matches[0].Name)
}

func TestAnalyticsRepository_Append(t *testing.T) {
	db := testDB(t)
	repo := db.AnalyticsRepository()

	status := 200
	row := &AnalyticsRow{
		SiteID: 1, URL: "https://example.com", Name: "Example",
		Timestamp: time.Now(), TrafficLight: "green", HTTPStatus: &status,
		DNSResolved: true, PingIntervalSec: 30,
	}
	require.NoError(t, repo.Append(row))

	stats, err := db.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats["site_logs_count"])
}

func boolPtr(b bool) *bool { return &b }
