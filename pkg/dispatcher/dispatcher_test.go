package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/database"
)

func testDispatcher(t *testing.T) (*Dispatcher, *database.DB) {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{MainURL: ":memory:"}}
	cfg.Dispatcher.AutocreateSites = false
	cfg.Pinger.IntervalSec = 30
	db, err := database.NewDB(cfg)
	require.NoError(t, err)

	d := New(db, nil, cfg, nil, nil, 60)
	return d, db
}

func TestResolveSiteID_ByID(t *testing.T) {
	d, db := testDispatcher(t)
	defer db.Close()

	site := &database.Site{URL: "https://example.com", Name: "Example", PingIntervalSec: 30}
	require.NoError(t, db.SiteRepository().Create(site))

	id, ok := d.resolveSiteID(bus.ProbeEvent{ID: site.ID})
	assert.True(t, ok)
	assert.Equal(t, site.ID, id)
}

func TestResolveSiteID_ByURL(t *testing.T) {
	d, db := testDispatcher(t)
	defer db.Close()

	site := &database.Site{URL: "https://example.com", Name: "Example", PingIntervalSec: 30}
	require.NoError(t, db.SiteRepository().Create(site))

	id, ok := d.resolveSiteID(bus.ProbeEvent{URL: "https://example.com"})
	assert.True(t, ok)
	assert.Equal(t, site.ID, id)
}

func TestResolveSiteID_DropsUnknownWithoutAutocreate(t *testing.T) {
	d, db := testDispatcher(t)
	defer db.Close()

	_, ok := d.resolveSiteID(bus.ProbeEvent{URL: "https://unknown.example.com"})
	assert.False(t, ok)
}

func TestResolveSiteID_AutocreatesWhenEnabled(t *testing.T) {
	d, db := testDispatcher(t)
	defer db.Close()
	d.cfg.Dispatcher.AutocreateSites = true

	id, ok := d.resolveSiteID(bus.ProbeEvent{URL: "https://new.example.com", Name: "New"})
	assert.True(t, ok)
	assert.NotZero(t, id)

	site, err := db.SiteRepository().GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", site.URL)
}

func TestRecipientsFor_DedupesChatsAndGroupsEmailsPerTeam(t *testing.T) {
	teamA := &database.Team{Name: "team-a"}
	chatID := int64(111)
	teamA.TgChatID = &chatID
	require.NoError(t, teamA.SetEmailRecipients([]string{"a@example.com", "a@example.com"}))

	teamB := &database.Team{Name: "team-b"}
	teamB.TgChatID = &chatID
	require.NoError(t, teamB.SetEmailRecipients([]string{"a@example.com", "b@example.com"}))

	chatIDs, groups := recipientsFor([]*database.Team{teamA, teamB})
	assert.Equal(t, []int64{111}, chatIDs)
	require.Len(t, groups, 2)

	assert.Equal(t, "team-a", groups[0].TeamName)
	assert.Equal(t, []string{"a@example.com"}, groups[0].Emails)

	assert.Equal(t, "team-b", groups[1].TeamName)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, groups[1].Emails)
}

func TestRecipientsFor_SkipsTeamsWithNoEmails(t *testing.T) {
	team := &database.Team{Name: "chat-only"}
	chatID := int64(222)
	team.TgChatID = &chatID

	_, groups := recipientsFor([]*database.Team{team})
	assert.Empty(t, groups)
}

func TestAppendUnique_SkipsDuplicate(t *testing.T) {
	ids := appendUnique([]int64{1, 2}, 2)
	assert.Equal(t, []int64{1, 2}, ids)

	ids = appendUnique(ids, 3)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}
